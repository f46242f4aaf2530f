package api

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/digkill/CatPortrait/internal/auth"
	"github.com/digkill/CatPortrait/internal/models"
	"github.com/digkill/CatPortrait/internal/prompt"
	"github.com/digkill/CatPortrait/internal/service"
)

const creemSignatureHeader = "creem-signature"

type generateRequest struct {
	Prompt          prompt.StructuredPrompt `json:"prompt"`
	GuestTrialsUsed int                     `json:"guestTrialsUsed"`
}

func (s *Server) handleGenerate(route string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if err := decodeJSON(w, r, maxJSONBody, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		portrait, err := s.deps.Portraits.Create(r.Context(), service.PortraitRequest{
			Route:           route,
			Caller:          auth.FromContext(r.Context()),
			Prompt:          req.Prompt,
			GuestTrialsUsed: req.GuestTrialsUsed,
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, portrait)
	}
}

type quizRequest struct {
	Stage int `json:"stage"`
}

func (s *Server) handleQuiz(w http.ResponseWriter, r *http.Request) {
	var req quizRequest
	if err := decodeJSON(w, r, maxJSONBody, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	question, err := s.deps.Quiz.Pick(req.Stage)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stage":    req.Stage,
		"question": question,
	})
}

func (s *Server) handleGetPoints(w http.ResponseWriter, r *http.Request) {
	caller := auth.FromContext(r.Context())
	points, err := s.deps.Points.Balance(r.Context(), caller.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"points": points})
}

type adjustPointsRequest struct {
	Amount int    `json:"amount"`
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func (s *Server) handleAdjustPoints(w http.ResponseWriter, r *http.Request) {
	var req adjustPointsRequest
	if err := decodeJSON(w, r, maxJSONBody, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	caller := auth.FromContext(r.Context())
	kind := models.TransactionType(strings.ToUpper(strings.TrimSpace(req.Type)))
	points, err := s.deps.Points.Adjust(r.Context(), caller.UserID, req.Amount, kind, req.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"points": points})
}

func (s *Server) handlePointsHistory(w http.ResponseWriter, r *http.Request) {
	caller := auth.FromContext(r.Context())
	txs, err := s.deps.Points.History(r.Context(), caller.UserID, queryInt(r, "limit", 50))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

func (s *Server) handleListImages(w http.ResponseWriter, r *http.Request) {
	owner := ""
	if r.URL.Query().Get("mine") == "true" {
		caller := auth.FromContext(r.Context())
		if caller.IsGuest() {
			s.writeError(w, r, service.ErrAuthRequired)
			return
		}
		owner = caller.UserID
	}
	page, err := s.deps.Images.List(r.Context(), owner, queryInt(r, "page", 1), queryInt(r, "limit", 20))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

type visibilityRequest struct {
	ImageID  string `json:"imageId"`
	IsPublic bool   `json:"isPublic"`
}

func (s *Server) handleImageVisibility(w http.ResponseWriter, r *http.Request) {
	var req visibilityRequest
	if err := decodeJSON(w, r, maxJSONBody, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	caller := auth.FromContext(r.Context())
	if err := s.deps.Images.SetVisibility(r.Context(), caller.UserID, req.ImageID, req.IsPublic); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"imageId": req.ImageID, "isPublic": req.IsPublic})
}

func (s *Server) handleImageStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Images.Stats(r.Context(), r.URL.Query().Get("imageId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type imageEventRequest struct {
	ImageID string `json:"imageId"`
	Action  string `json:"action"`
	Value   int    `json:"value"`
}

func (s *Server) handleImageEvent(w http.ResponseWriter, r *http.Request) {
	var req imageEventRequest
	if err := decodeJSON(w, r, maxJSONBody, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	caller := auth.FromContext(r.Context())
	action := models.ImageAction(strings.ToLower(strings.TrimSpace(req.Action)))
	stats, err := s.deps.Images.RecordEvent(r.Context(), caller.UserID, req.ImageID, action, req.Value)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type saveImageRequest struct {
	ImageURL string `json:"imageUrl"`
	Prompt   string `json:"prompt"`
	APIUsed  string `json:"apiUsed"`
	IsPublic bool   `json:"isPublic"`
}

func (s *Server) handleSaveImage(w http.ResponseWriter, r *http.Request) {
	var req saveImageRequest
	if err := decodeJSON(w, r, maxImageBody, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	caller := auth.FromContext(r.Context())
	img, err := s.deps.Images.Save(r.Context(), caller.UserID, service.SaveImageInput{
		ImageURL: req.ImageURL,
		Prompt:   req.Prompt,
		APIUsed:  req.APIUsed,
		IsPublic: req.IsPublic,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, img)
}

type createPaymentRequest struct {
	PlanID string `json:"planId"`
}

func (s *Server) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := decodeJSON(w, r, maxJSONBody, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	caller := auth.FromContext(r.Context())
	checkout, err := s.deps.Payments.CreateCheckout(r.Context(), caller.UserID, req.PlanID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, checkout)
}

type cancelPaymentRequest struct {
	CheckoutID string `json:"checkoutId"`
}

func (s *Server) handleCancelPayment(w http.ResponseWriter, r *http.Request) {
	var req cancelPaymentRequest
	if err := decodeJSON(w, r, maxJSONBody, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	caller := auth.FromContext(r.Context())
	if err := s.deps.Payments.Cancel(r.Context(), caller.UserID, req.CheckoutID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"checkoutId": req.CheckoutID, "status": string(models.PaymentCanceled)})
}

func (s *Server) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	caller := auth.FromContext(r.Context())
	state, err := s.deps.Payments.Verify(r.Context(), caller.UserID, r.URL.Query().Get("checkout_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handleCreemWebhook is the public endpoint for Creem events. The signature
// covers the raw body, so it is read before any decoding.
func (s *Server) handleCreemWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: read body: %v", errBadJSON, err))
		return
	}
	if err := s.deps.Payments.HandleWebhook(r.Context(), body, r.Header.Get(creemSignatureHeader)); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
