package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"encore/internal/config"
	"encore/internal/economy"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"log/slog"
)

type Server struct {
	cfg  config.APIConfig
	log  *slog.Logger
	core *economy.Service
	mux  *chi.Mux
}

func New(cfg config.APIConfig, logger *slog.Logger, core *economy.Service) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:  cfg,
		log:  logger,
		core: core,
		mux:  chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/users", s.handleEnsureUser)
		r.Get("/inventory", s.handleInventory)
		r.Post("/draws", s.handleDraw)
		r.Post("/gifts", s.handleGift)
		r.Post("/cards/lock", s.handleCardLock)

		r.Post("/trades", s.handleStartTrade)
		r.Get("/trades/{id}", s.handleTradeState)
		r.Post("/trades/{id}/offers", s.handleAddOffer)
		r.Post("/trades/{id}/accept", s.handleAcceptTrade)
		r.Post("/trades/{id}/reject", s.handleRejectTrade)

		r.Get("/listings", s.handleListings)
		r.Post("/listings", s.handleCreateListing)
		r.Post("/listings/{id}/settle", s.handleSettleListing)
		r.Post("/listings/{id}/cancel", s.handleCancelListing)

		r.Get("/attempts", s.handleAttempts)
		r.Post("/attempts", s.handleStartAttempt)
		r.Post("/attempts/claim", s.handleClaimAttempts)

		r.Post("/events", s.handleCreateEvent)
		r.Get("/events/{id}", s.handleEvent)
		r.Get("/events/{id}/standings", s.handleStandings)
		r.Post("/events/{id}/like", s.handleLike)
		r.Post("/events/{id}/subscribe", s.handleSubscribe)
		r.Post("/events/{id}/superchat/quote", s.handleSuperchatQuote)
		r.Post("/events/superchat/confirm", s.handleSuperchatConfirm)
		r.Post("/events/settle", s.handleSettleEvents)
	})
}

// authMiddleware checks the shared API token and pulls the acting user the
// trusted gateway resolved. Fuzzy name resolution happens in the gateway;
// the core only ever sees exact identifiers.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if bearerToken(r.Header.Get("Authorization")) != s.cfg.APIToken {
			writeError(w, http.StatusUnauthorized, "invalid api token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func actingUser(r *http.Request) (string, error) {
	userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
	if userID == "" {
		return "", errors.New("missing X-User-ID header")
	}
	return userID, nil
}

func (s *Server) handleEnsureUser(w http.ResponseWriter, r *http.Request) {
	var in struct {
		UserID   string `json:"user_id"`
		Username string `json:"username"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(in.UserID) == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if err := s.core.EnsureProfile(r.Context(), in.UserID, in.Username); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true})
}

func (s *Server) handleInventory(w http.ResponseWriter, r *http.Request) {
	userID, err := actingUser(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.core.Inventory(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDraw(w http.ResponseWriter, r *http.Request) {
	userID, err := actingUser(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var in struct {
		Subject string `json:"subject"`
		Slot    string `json:"slot"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.core.DrawWeightedReward(r.Context(), economy.DrawInput{
		UserID:         userID,
		Subject:        in.Subject,
		SlotName:       in.Slot,
		IdempotencyKey: idempotencyKey(r),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGift(w http.ResponseWriter, r *http.Request) {
	userID, err := actingUser(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var in struct {
		ToUserID string               `json:"to_user_id"`
		Items    []economy.CardAmount `json:"items"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	shortfalls, err := s.core.GiftCards(r.Context(), userID, in.ToUserID, in.Items)
	if len(shortfalls) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":      "insufficient cards",
			"shortfalls": shortfalls,
		})
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleCardLock(w http.ResponseWriter, r *http.Request) {
	userID, err := actingUser(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var in struct {
		Name   string `json:"name"`
		Rarity string `json:"rarity"`
		Locked bool   `json:"locked"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.core.SetCardLock(r.Context(), userID, in.Name, in.Rarity, in.Locked); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleStartTrade(w http.ResponseWriter, r *http.Request) {
	userID, err := actingUser(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var in struct {
		ToUserID string `json:"to_user_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(in.ToUserID) == "" || in.ToUserID == userID {
		writeError(w, http.StatusBadRequest, "to_user_id must be another user")
		return
	}
	writeJSON(w, http.StatusCreated, s.core.StartTrade(userID, in.ToUserID))
}

func (s *Server) handleTradeState(w http.ResponseWriter, r *http.Request) {
	out, err := s.core.TradeState(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAddOffer(w http.ResponseWriter, r *http.Request) {
	userID, err := actingUser(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var in economy.CardAmount
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.Count <= 0 {
		writeError(w, http.StatusBadRequest, "count must be > 0")
		return
	}
	out, err := s.core.AddOffer(r.Context(), chi.URLParam(r, "id"), userID, in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAcceptTrade(w http.ResponseWriter, r *http.Request) {
	userID, err := actingUser(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.core.AcceptTrade(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRejectTrade(w http.ResponseWriter, r *http.Request) {
	userID, err := actingUser(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.core.RejectTrade(chi.URLParam(r, "id"), userID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleListings(w http.ResponseWriter, r *http.Request) {
	out, err := s.core.ActiveListings(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"listings": out})
}

func (s *Server) handleCreateListing(w http.ResponseWriter, r *http.Request) {
	userID, err := actingUser(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var in struct {
		Offering []economy.CardAmount  `json:"offering"`
		Wanted   []economy.WantedEntry `json:"wanted"`
		TTL      string                `json:"ttl"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ttl := 24 * time.Hour
	if in.TTL != "" {
		d, err := time.ParseDuration(in.TTL)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "invalid ttl")
			return
		}
		ttl = d
	}
	out, err := s.core.CreateListing(r.Context(), userID, in.Offering, in.Wanted, ttl)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleSettleListing(w http.ResponseWriter, r *http.Request) {
	userID, err := actingUser(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.core.SettleListing(r.Context(), chi.URLParam(r, "id"), userID, idempotencyKey(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCancelListing(w http.ResponseWriter, r *http.Request) {
	userID, err := actingUser(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.core.CancelListing(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleAttempts(w http.ResponseWriter, r *http.Request) {
	userID, err := actingUser(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.core.PendingAttempts(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attempts": out})
}

func (s *Server) handleStartAttempt(w http.ResponseWriter, r *http.Request) {
	userID, err := actingUser(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var in struct {
		Name   string `json:"name"`
		Rarity string `json:"rarity"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.core.StartLiveAttempt(r.Context(), userID, in.Name, in.Rarity)
	if errors.Is(err, economy.ErrStageBusy) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      err.Error(),
			"busy_until": out.BusyUntil,
		})
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleClaimAttempts(w http.ResponseWriter, r *http.Request) {
	userID, err := actingUser(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.core.ClaimReadyAttempts(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var in struct {
		SubjectID string    `json:"subject_id"`
		SpawnAt   time.Time `json:"spawn_at"`
		EndsAt    time.Time `json:"ends_at"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !in.EndsAt.After(in.SpawnAt) {
		writeError(w, http.StatusBadRequest, "ends_at must be after spawn_at")
		return
	}
	out, err := s.core.CreateBossEvent(r.Context(), in.SubjectID, in.SpawnAt, in.EndsAt)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	out, err := s.core.Event(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStandings(w http.ResponseWriter, r *http.Request) {
	out, err := s.core.Standings(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"standings": out})
}

func (s *Server) handleLike(w http.ResponseWriter, r *http.Request) {
	userID, err := actingUser(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.core.LikeEvent(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	userID, err := actingUser(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var in struct {
		Name   string `json:"name"`
		Rarity string `json:"rarity"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.core.SubscribeEvent(r.Context(), chi.URLParam(r, "id"), userID, in.Name, in.Rarity)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSuperchatQuote(w http.ResponseWriter, r *http.Request) {
	userID, err := actingUser(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.core.QuoteSuperchat(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSuperchatConfirm(w http.ResponseWriter, r *http.Request) {
	userID, err := actingUser(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var in struct {
		QuoteID string `json:"quote_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.core.ConfirmSuperchat(r.Context(), in.QuoteID, userID, idempotencyKey(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSettleEvents(w http.ResponseWriter, r *http.Request) {
	out, err := s.core.SettleEndedEvents(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"settled": out})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, economy.ErrInsufficientQuantity),
		errors.Is(err, economy.ErrCardLocked),
		errors.Is(err, economy.ErrInsufficientFunds),
		errors.Is(err, economy.ErrInvalidRarity),
		errors.Is(err, economy.ErrUnsupportedWantedType),
		errors.Is(err, economy.ErrStaleQuote),
		errors.Is(err, economy.ErrNoCard):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, economy.ErrStageBusy),
		errors.Is(err, economy.ErrAlreadyResolved),
		errors.Is(err, economy.ErrAttemptNotReady),
		errors.Is(err, economy.ErrAlreadySettled),
		errors.Is(err, economy.ErrAlreadyLiked),
		errors.Is(err, economy.ErrTradeClosed),
		errors.Is(err, economy.ErrListingNotActive),
		errors.Is(err, economy.ErrEventNotActive),
		errors.Is(err, economy.ErrDuplicateIdempotency),
		errors.Is(err, economy.ErrTxConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, economy.ErrTradeNotFound),
		errors.Is(err, economy.ErrListingNotFound),
		errors.Is(err, economy.ErrEventNotFound),
		errors.Is(err, economy.ErrAttemptNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, economy.ErrNotParticipant),
		errors.Is(err, economy.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, economy.ErrThrottled):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, economy.ErrConfirmationExpired):
		writeError(w, http.StatusGone, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func idempotencyKey(r *http.Request) string {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" {
		return key
	}
	return uuid.NewString()
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
