// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bayleaf Agents Contributors

package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/bayleaf-health/bayleaf-agents/internal/agent"
	bayerr "github.com/bayleaf-health/bayleaf-agents/pkg/errors"
	"github.com/bayleaf-health/bayleaf-agents/pkg/types"
)

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"system"},
	}, s.handleHealth)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-agents",
		Method:      http.MethodGet,
		Path:        "/api/v1/agents",
		Summary:     "List agents",
		Tags:        []string{"agents"},
	}, s.handleListAgents)

	huma.Register(s.api, huma.Operation{
		OperationID: "agent-chat",
		Method:      http.MethodPost,
		Path:        "/api/v1/agents/{slug}/chat",
		Summary:     "Send a message to an agent",
		Tags:        []string{"agents"},
	}, s.handleChat)
}

// HealthBody is the JSON body of the health endpoint response.
type HealthBody struct {
	Status   string `json:"status" example:"ok" doc:"Health status"`
	Env      string `json:"env" example:"dev" doc:"Deployment environment"`
	Provider string `json:"provider" example:"openai/gpt-4o-mini" doc:"Default model"`
}

type healthOutput struct {
	Body HealthBody
}

// AgentSummary describes one agent.
type AgentSummary struct {
	Slug      string   `json:"slug" example:"appointment"`
	Name      string   `json:"name" example:"Appointment Agent"`
	Languages []string `json:"languages" example:"[\"en-US\",\"pt-BR\"]"`
}

type listAgentsOutput struct {
	Body []AgentSummary
}

// ChatRequestBody is the body of a chat call.
type ChatRequestBody struct {
	Channel        string `json:"channel" enum:"bayleaf_app,whatsapp,partner" doc:"Channel the message arrived on"`
	Message        string `json:"message" minLength:"1" doc:"User message"`
	ConversationID string `json:"conversation_id,omitempty" doc:"Caller-side conversation id; omit to start a new conversation"`
	Lang           string `json:"lang,omitempty" example:"pt-BR" doc:"Reply language"`
}

type chatInput struct {
	Slug string `path:"slug" example:"appointment"`
	Body ChatRequestBody
}

// Safety carries the triage classification.
type Safety struct {
	Triage string `json:"triage" enum:"non-urgent,urgent"`
}

// ChatResponseBody is the body of a chat reply.
type ChatResponseBody struct {
	Reply          string   `json:"reply"`
	UsedTools      []string `json:"used_tools"`
	Safety         Safety   `json:"safety"`
	TraceID        string   `json:"trace_id"`
	ConversationID string   `json:"conversation_id"`
}

type chatOutput struct {
	Body ChatResponseBody
}

func (s *Server) handleHealth(_ context.Context, _ *struct{}) (*healthOutput, error) {
	return &healthOutput{Body: HealthBody{Status: "ok", Env: s.cfg.Env, Provider: s.cfg.Provider}}, nil
}

func (s *Server) handleListAgents(_ context.Context, _ *struct{}) (*listAgentsOutput, error) {
	agents := s.chat.Catalog().List()
	out := &listAgentsOutput{Body: make([]AgentSummary, 0, len(agents))}
	for _, a := range agents {
		out.Body = append(out.Body, AgentSummary{Slug: a.Slug, Name: a.Name, Languages: a.Languages()})
	}
	return out, nil
}

func (s *Server) handleChat(ctx context.Context, input *chatInput) (*chatOutput, error) {
	p, ok := PrincipalFrom(ctx)
	if !ok {
		return nil, s.toHumaError(ctx, errPrincipalMissing)
	}
	channel, err := types.ParseChannel(input.Body.Channel)
	if err != nil {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}

	res, err := s.chat.Chat(ctx, input.Slug, agent.TurnRequest{
		Principal:      p,
		Channel:        channel,
		Message:        input.Body.Message,
		ConversationID: input.Body.ConversationID,
		Language:       input.Body.Lang,
	})
	if err != nil {
		return nil, s.toHumaError(ctx, err)
	}

	return &chatOutput{Body: ChatResponseBody{
		Reply:          res.Reply,
		UsedTools:      res.UsedTools,
		Safety:         Safety{Triage: string(res.Triage)},
		TraceID:        res.TraceID,
		ConversationID: res.ConversationID,
	}}, nil
}

// toHumaError maps an error to its HTTP status. Server-side failures are
// logged in full and reported with a generic message.
func (s *Server) toHumaError(ctx context.Context, err error) error {
	status := bayerr.HTTPStatus(err)
	code := string(bayerr.CodeOf(err))
	if status >= http.StatusInternalServerError {
		s.log.LogAttrs(ctx, slog.LevelError, "request_failed",
			slog.Int("status", status),
			slog.String("code", code),
			slog.Any("error", err),
		)
	}

	switch status {
	case http.StatusServiceUnavailable:
		return huma.Error503ServiceUnavailable("phi_filter_unavailable: redaction is required and the detector could not be reached")
	case http.StatusBadGateway:
		return huma.Error502BadGateway("model provider failed")
	case http.StatusGatewayTimeout:
		return huma.Error504GatewayTimeout("timed out")
	case http.StatusInternalServerError:
		return huma.Error500InternalServerError("internal error")
	}
	return huma.NewError(status, err.Error())
}
