package hermes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/verdict/internal/analyzer"
	"github.com/MikeSquared-Agency/verdict/internal/auth"
	"github.com/MikeSquared-Agency/verdict/internal/thread"
)

// Classifier runs the analysis pipeline.
type Classifier interface {
	Classify(ctx context.Context, principal *auth.Principal, forest []thread.Message) (*analyzer.Result, error)
}

// ClassifyRequest is the payload on SubjectClassifyRequest. Callers on the bus
// are trusted to name the principal they act for.
type ClassifyRequest struct {
	PrincipalID  string           `json:"principal_id,omitempty"`
	Conversation []thread.Message `json:"conversation"`
}

type ClassifyReply struct {
	Result *analyzer.Result `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"`
}

const classifyFailed = "Failed to classify conversation."

// ClassifyHandler adapts c to Serve. Each request gets its own deadline.
func ClassifyHandler(c Classifier, timeout time.Duration, logger *slog.Logger) RequestHandler {
	return func(ctx context.Context, data []byte) []byte {
		var req ClassifyRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return encodeReply(ClassifyReply{Error: fmt.Sprintf("invalid request: %v", err)})
		}
		if req.Conversation == nil {
			return encodeReply(ClassifyReply{Error: "invalid request: conversation is required"})
		}
		if err := thread.Validate(req.Conversation); err != nil {
			return encodeReply(ClassifyReply{Error: fmt.Sprintf("invalid conversation: %v", err)})
		}

		var principal *auth.Principal
		if req.PrincipalID != "" {
			principal = &auth.Principal{ID: req.PrincipalID}
		}

		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		result, err := c.Classify(ctx, principal, req.Conversation)
		if err != nil {
			logger.Error("bus classification failed", "principal", req.PrincipalID, "error", err)
			return encodeReply(ClassifyReply{Error: classifyFailed})
		}
		return encodeReply(ClassifyReply{Result: result})
	}
}

func encodeReply(r ClassifyReply) []byte {
	data, err := json.Marshal(r)
	if err != nil {
		data, _ = json.Marshal(ClassifyReply{Error: classifyFailed})
	}
	return data
}
