// This is a development token issuer. It hands out JWTs accepted by the
// CRM for write requests, standing in for the identity provider.
package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/gartstein/solarcrm/internal/crm/auth"
	"go.uber.org/zap"
)

type args struct {
	Port    string `arg:"--port,env:AUTH_PORT" help:"port to listen on"`
	Secret  string `arg:"--secret,env:JWT_SECRET" help:"secret signing the tokens"`
	Subject string `arg:"--subject,env:AUTH_SUBJECT" help:"default user id of issued tokens"`
}

// TokenResponse represents the response structure
type TokenResponse struct {
	Token     string    `json:"token"`
	Subject   string    `json:"subject"`
	ExpiresAt time.Time `json:"expires_at"`
}

type issuer struct {
	secret  string
	subject string
	logger  *zap.Logger
}

// tokenHandler issues a token for the user query parameter or the default
// subject.
func (i *issuer) tokenHandler(w http.ResponseWriter, r *http.Request) {
	subject := r.URL.Query().Get("user")
	if subject == "" {
		subject = i.subject
	}

	token, err := auth.GenerateToken(subject, i.secret)
	if err != nil {
		i.logger.Error("Failed to generate token", zap.Error(err))
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	resp := TokenResponse{Token: token, Subject: subject, ExpiresAt: time.Now().Add(auth.TokenTTL).UTC()}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		i.logger.Error("Failed to encode token", zap.Error(err))
	}
	i.logger.Info("Issued token", zap.String("subject", subject))
}

func main() {
	a := args{Port: "8081", Secret: "jwt_secret", Subject: "12345"}
	arg.MustParse(&a)

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	i := &issuer{secret: a.Secret, subject: a.Subject, logger: logger.Named("auth_service")}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", i.tokenHandler)

	logger.Info("Authentication service running", zap.String("port", a.Port))
	server := &http.Server{Addr: ":" + a.Port, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	if err := server.ListenAndServe(); err != nil {
		logger.Fatal("Authentication service stopped", zap.Error(err))
	}
}
