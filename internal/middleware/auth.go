package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type contextKey string

const ConversationIDKey contextKey = "conversation_id"

// ConversationTokenTTL bounds a widget session; the conversation itself is
// usually evicted for idleness long before.
const ConversationTokenTTL = 12 * time.Hour

var errInvalidConversationClaim = errors.New("invalid conversation id in token")

type JWTAuth struct {
	Secret []byte
}

func NewJWTAuth(secret string) *JWTAuth {
	return &JWTAuth{Secret: []byte(secret)}
}

// GenerateConversationToken signs a token scoped to one conversation.
func (j *JWTAuth) GenerateConversationToken(conversationID uuid.UUID, variant string) (string, error) {
	claims := jwt.MapClaims{
		"conversation_id": conversationID.String(),
		"variant":         variant,
		"exp":             time.Now().Add(ConversationTokenTTL).Unix(),
		"iat":             time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.Secret)
}

// ParseConversationToken verifies tokenStr and returns its conversation id.
func (j *JWTAuth) ParseConversationToken(tokenStr string) (uuid.UUID, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return j.Secret, nil
	})
	if err != nil {
		return uuid.Nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return uuid.Nil, jwt.ErrTokenInvalidClaims
	}

	idStr, ok := claims["conversation_id"].(string)
	if !ok {
		return uuid.Nil, errInvalidConversationClaim
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, errInvalidConversationClaim
	}
	return id, nil
}

// Middleware validates the bearer token and, on routes carrying {id},
// requires it to name the same conversation.
func (j *JWTAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing authorization header", r)
			return
		}

		// Must be Bearer format
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid authorization format", r)
			return
		}

		conversationID, err := j.ParseConversationToken(parts[1])
		if err != nil {
			switch {
			case errors.Is(err, jwt.ErrTokenExpired):
				writeError(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "Token has expired", r)
			case errors.Is(err, errInvalidConversationClaim):
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid conversation ID in token", r)
			default:
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token", r)
			}
			return
		}

		if param := chi.URLParam(r, "id"); param != "" && param != conversationID.String() {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Token does not belong to this conversation", r)
			return
		}

		ctx := context.WithValue(r.Context(), ConversationIDKey, conversationID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetConversationID extracts the token's conversation id from request context
func GetConversationID(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(ConversationIDKey).(uuid.UUID)
	return id
}

func writeError(w http.ResponseWriter, status int, code, message string, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"code":       code,
			"message":    message,
			"request_id": requestID,
		},
	})
}
