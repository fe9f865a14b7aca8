package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/solace-labs/solace/internal/knowledge"
	"github.com/solace-labs/solace/internal/log"
	"github.com/solace-labs/solace/internal/pipeline"
	"github.com/solace-labs/solace/internal/profile"
)

// TokenResolver maps an opaque bearer credential to a user identity.
// Resolution is external to this service (auth gateway, JWT verifier).
type TokenResolver func(ctx context.Context, token string) (string, error)

// TurnRunner executes one conversation turn. Satisfied by
// *pipeline.Pipeline.
type TurnRunner interface {
	Run(ctx context.Context, turn pipeline.Turn, onDelta pipeline.DeltaFunc) (pipeline.Outcome, error)
}

// ProfileGuard resolves coaching-profile ownership for the
// cross-tenant access check. Satisfied by *knowledge.Store.
type ProfileGuard interface {
	ProfileOwner(ctx context.Context, profileID uuid.UUID) (string, error)
}

// chatRequest is the inbound body of POST /api/chat.
type chatRequest struct {
	Query             string `json:"query"`
	UserID            string `json:"userId"`
	SessionID         string `json:"sessionId"`
	ProfileID         string `json:"profileId"`
	DetectedLanguage  string `json:"detectedLanguage"`
	DetectedSentiment string `json:"detectedSentiment"`
}

// ChatHandler serves the streaming chat endpoint.
type ChatHandler struct {
	runner   TurnRunner
	resolver TokenResolver
	profiles ProfileGuard
	limits   *userLimiters
	logger   log.Logger
}

// NewChatHandler creates a ChatHandler. resolver may be nil, in which
// case every request without a userId in the body runs anonymously.
func NewChatHandler(runner TurnRunner, resolver TokenResolver, profiles ProfileGuard, perUserRPS float64, burst int, logger log.Logger) *ChatHandler {
	return &ChatHandler{
		runner:   runner,
		resolver: resolver,
		profiles: profiles,
		limits:   newUserLimiters(perUserRPS, burst),
		logger:   logger.With("component", "chat_handler"),
	}
}

// RegisterRoutes registers the chat endpoint on mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", h.handleChat)
}

func (h *ChatHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	userID := h.resolveIdentity(r, req)

	if !h.limits.allow(userID) {
		retryAfter := h.limits.retryAfter()
		w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	turn, err := h.buildTurn(r.Context(), req, userID)
	if err != nil {
		h.writeTurnError(w, err)
		return
	}

	sw := newStreamWriter(w)
	outcome, err := h.runner.Run(r.Context(), turn, func(delta string) error {
		return sw.WriteDelta(delta)
	})
	if err != nil {
		if sw.Started() {
			// The status line is committed; the pipeline has already
			// surfaced the failure in-band where possible.
			h.logger.Error("turn failed mid-stream", "user", userID, "error", err)
			return
		}
		h.logger.Error("turn failed", "user", userID, "error", err)
		writeError(w, http.StatusBadGateway, "generation failed")
		return
	}

	if err := sw.WriteMeta(outcome.Citations); err != nil {
		h.logger.Warn("writing metadata frame failed", "error", err)
		return
	}
	if err := sw.WriteDone(); err != nil {
		h.logger.Warn("writing terminator failed", "error", err)
	}
}

var (
	// errForbiddenProfile signals a cross-tenant profile access attempt.
	errForbiddenProfile = errors.New("profile access denied")

	// errInvalidID marks malformed sessionId/profileId values.
	errInvalidID = errors.New("invalid identifier")
)

// buildTurn validates the request IDs and assembles the pipeline input.
func (h *ChatHandler) buildTurn(ctx context.Context, req chatRequest, userID string) (pipeline.Turn, error) {
	turn := pipeline.Turn{
		Query:             req.Query,
		UserID:            userID,
		DetectedLanguage:  req.DetectedLanguage,
		DetectedSentiment: req.DetectedSentiment,
	}

	if req.SessionID != "" {
		sid, err := uuid.Parse(req.SessionID)
		if err != nil {
			return pipeline.Turn{}, fmt.Errorf("sessionId: %w", errInvalidID)
		}
		turn.SessionID = sid
	} else {
		turn.SessionID = uuid.New()
	}

	if req.ProfileID != "" {
		pid, err := uuid.Parse(req.ProfileID)
		if err != nil {
			return pipeline.Turn{}, fmt.Errorf("profileId: %w", errInvalidID)
		}
		if err := h.checkProfileAccess(ctx, pid, userID); err != nil {
			return pipeline.Turn{}, err
		}
		turn.ProfileID = &pid
	}
	return turn, nil
}

// checkProfileAccess rejects requests targeting a profile the caller
// does not own. A missing profile is indistinguishable from a foreign
// one to avoid leaking profile existence.
func (h *ChatHandler) checkProfileAccess(ctx context.Context, profileID uuid.UUID, userID string) error {
	if h.profiles == nil {
		return nil
	}
	owner, err := h.profiles.ProfileOwner(ctx, profileID)
	if errors.Is(err, knowledge.ErrProfileNotFound) {
		return errForbiddenProfile
	}
	if err != nil {
		return fmt.Errorf("resolving profile owner: %w", err)
	}
	if owner != userID {
		return errForbiddenProfile
	}
	return nil
}

func (h *ChatHandler) writeTurnError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errForbiddenProfile):
		writeError(w, http.StatusForbidden, "profile access denied")
	case errors.Is(err, errInvalidID):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// resolveIdentity picks the caller's identity: a resolved bearer token
// wins, then the body userId, then an anonymous identity derived from
// the remote address. Anonymous users are served but never get durable
// personal writes.
func (h *ChatHandler) resolveIdentity(r *http.Request, req chatRequest) string {
	if h.resolver != nil {
		if token := bearerToken(r); token != "" {
			userID, err := h.resolver(r.Context(), token)
			if err == nil && userID != "" {
				return userID
			}
			h.logger.Debug("bearer token resolution failed, downgrading to anonymous", "error", err)
		}
	}
	if req.UserID != "" && !profile.IsAnonymous(req.UserID) {
		return req.UserID
	}
	return anonymousID(r.RemoteAddr)
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return auth[len(prefix):]
	}
	return ""
}

// anonymousID derives a stable anonymous identity from the caller's
// address so rate limiting still applies per caller.
func anonymousID(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	sum := sha256.Sum256([]byte(host))
	return profile.AnonPrefix + hex.EncodeToString(sum[:])[:12]
}
