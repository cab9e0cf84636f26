// Package server exposes the distributor and the local registry over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	"github.com/merkle-airdrop/airdrop/internal/airdrop"
	"github.com/merkle-airdrop/airdrop/internal/logging"
	"github.com/merkle-airdrop/airdrop/internal/permit"
	"github.com/merkle-airdrop/airdrop/internal/protocol"
	"github.com/merkle-airdrop/airdrop/internal/registry"
)

// maxBodyBytes bounds request bodies; a proof for 2^32 leaves is ~2 KiB.
const maxBodyBytes = 64 << 10

// Service serves claims for a Distributor
type Service struct {
	router   *mux.Router
	dist     *airdrop.Distributor
	registry *registry.Memory // nil when the registry is remote
	logger   *logging.Logger
}

// NewService creates the HTTP service. reg may be nil, in which case the
// /registry routes are not served.
func NewService(dist *airdrop.Distributor, reg *registry.Memory, logger *logging.Logger) *Service {
	s := &Service{
		router:   mux.NewRouter(),
		dist:     dist,
		registry: reg,
		logger:   logger.Named("http"),
	}
	s.setupRoutes()
	return s
}

// Router returns the HTTP router for testing
func (s *Service) Router() *mux.Router {
	return s.router
}

func (s *Service) setupRoutes() {
	s.router.HandleFunc("/airdrops", s.handleRounds).Methods("GET")
	s.router.HandleFunc("/airdrops/{id}", s.handleRound).Methods("GET")
	s.router.HandleFunc("/airdrops/{id}/claim", s.handleClaim).Methods("POST")
	s.router.HandleFunc("/airdrops/{id}/verify", s.handleVerify).Methods("POST")
	s.router.HandleFunc("/airdrops/{id}/claims/{address}", s.handleRecord).Methods("GET")
	if s.registry != nil {
		s.router.HandleFunc("/registry/{id}/allowed/{address}", s.handleAllowed).Methods("GET")
		s.router.HandleFunc("/registry/{id}/expired", s.handleExpired).Methods("GET")
	}
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

func (s *Service) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.logger.Info("airdrop service starting", "addr", addr, "rounds", len(s.dist.Rounds()))
	return http.ListenAndServe(addr, s.router)
}

// statusFor maps a claim rejection reason to an HTTP status
func statusFor(reason string) int {
	switch reason {
	case airdrop.ReasonUnknownRound:
		return http.StatusNotFound
	case airdrop.ReasonInvalidClaim:
		return http.StatusBadRequest
	case airdrop.ReasonProofMismatch, airdrop.ReasonInvalidSignature, airdrop.ReasonPermitInvalid, airdrop.ReasonUnknownRecipient:
		return http.StatusUnprocessableEntity
	case airdrop.ReasonPermitReplay, airdrop.ReasonNothingToClaim, airdrop.ReasonVestingNotReleased:
		return http.StatusConflict
	case airdrop.ReasonAllowlistDenied:
		return http.StatusForbidden
	case airdrop.ReasonExpired:
		return http.StatusGone
	case airdrop.ReasonRegistryError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, reason string, err error) {
	writeJSON(w, status, protocol.ErrorResponse{Error: err.Error(), Reason: reason})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() <= 0 {
		return nil, fmt.Errorf("amount %q is not a positive decimal integer", s)
	}
	return v, nil
}

func parsePermit(p *protocol.SignedPermit) (*permit.Permit, error) {
	if p == nil {
		return nil, nil
	}
	nonce, ok := new(big.Int).SetString(p.Nonce, 10)
	if !ok {
		return nil, fmt.Errorf("permit nonce %q is not a decimal integer", p.Nonce)
	}
	return &permit.Permit{
		Recipient:   p.Recipient,
		Destination: p.Destination,
		Nonce:       nonce,
		Signature:   p.Signature,
	}, nil
}

func (s *Service) handleClaim(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req protocol.ClaimRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, airdrop.ReasonInvalidClaim, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, airdrop.ReasonInvalidClaim, err)
		return
	}
	p, err := parsePermit(req.Permit)
	if err != nil {
		writeError(w, http.StatusBadRequest, airdrop.ReasonInvalidClaim, err)
		return
	}

	receipt, err := s.dist.Claim(r.Context(), id, airdrop.ClaimRequest{
		Recipient: req.Recipient,
		Amount:    amount,
		Proof:     req.Proof,
		Permit:    p,
	})
	if err != nil {
		reason := airdrop.Reason(err)
		status := statusFor(reason)
		if status >= http.StatusInternalServerError {
			s.logger.Error("claim failed", "round", id, "recipient", req.Recipient.Hex(), "err", err)
		} else {
			s.logger.Debug("claim rejected", "round", id, "recipient", req.Recipient.Hex(), "reason", reason, "err", err)
		}
		writeJSON(w, status, protocol.ClaimResponse{Error: err.Error(), Reason: reason})
		return
	}

	writeJSON(w, http.StatusOK, protocol.ClaimResponse{
		Success: true,
		Receipt: &protocol.ClaimReceipt{
			ID:             receipt.ID,
			Airdrop:        receipt.Airdrop,
			Recipient:      receipt.Recipient,
			Destination:    receipt.Destination,
			Amount:         receipt.Amount.String(),
			CumulativePaid: receipt.CumulativePaid.String(),
			Relayed:        receipt.Relayed,
			Timestamp:      uint64(receipt.Time.Unix()),
		},
	})
}

func (s *Service) handleVerify(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req protocol.VerifyRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, airdrop.ReasonInvalidClaim, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, airdrop.ReasonInvalidClaim, err)
		return
	}

	round, err := s.dist.Round(id)
	if err != nil {
		writeError(w, http.StatusNotFound, airdrop.ReasonUnknownRound, err)
		return
	}
	valid, err := s.dist.Verify(id, req.Recipient, amount, req.Proof)
	if err != nil {
		writeError(w, http.StatusNotFound, airdrop.ReasonUnknownRound, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.VerifyResponse{Valid: valid, Root: round.Root})
}

func (s *Service) roundInfo(round airdrop.Round) protocol.RoundInfo {
	bps, _ := s.dist.ReleasableBps(round.ID)
	return protocol.RoundInfo{
		ID:            round.ID,
		Root:          round.Root,
		ActivatedAt:   uint64(round.ActivatedAt.Unix()),
		Percentages:   round.Schedule.Percentages,
		TimeDeltas:    round.Schedule.TimeDeltas,
		ReleasableBps: bps,
	}
}

func (s *Service) handleRounds(w http.ResponseWriter, r *http.Request) {
	rounds := s.dist.Rounds()
	infos := make([]protocol.RoundInfo, 0, len(rounds))
	for _, round := range rounds {
		infos = append(infos, s.roundInfo(round))
	}
	writeJSON(w, http.StatusOK, infos)
}

func (s *Service) handleRound(w http.ResponseWriter, r *http.Request) {
	round, err := s.dist.Round(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusNotFound, airdrop.ReasonUnknownRound, err)
		return
	}
	writeJSON(w, http.StatusOK, s.roundInfo(round))
}

func (s *Service) handleRecord(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]
	if !common.IsHexAddress(vars["address"]) {
		writeError(w, http.StatusBadRequest, airdrop.ReasonInvalidClaim, fmt.Errorf("invalid address %q", vars["address"]))
		return
	}
	addr := common.HexToAddress(vars["address"])

	rec, found, err := s.dist.Record(id, addr)
	switch {
	case errors.Is(err, airdrop.ErrUnknownRound):
		writeError(w, http.StatusNotFound, airdrop.ReasonUnknownRound, err)
		return
	case err != nil:
		s.logger.Error("load claim record", "round", id, "recipient", addr.Hex(), "err", err)
		writeError(w, http.StatusInternalServerError, airdrop.ReasonInternal, err)
		return
	}

	resp := protocol.ClaimRecordResponse{
		Airdrop:        id,
		Recipient:      addr,
		Found:          found,
		CumulativePaid: rec.CumulativePaid.String(),
	}
	if found {
		resp.TotalEntitlement = rec.TotalEntitlement.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Service) handleAllowed(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if !common.IsHexAddress(vars["address"]) {
		writeError(w, http.StatusBadRequest, "", fmt.Errorf("invalid address %q", vars["address"]))
		return
	}
	addr := common.HexToAddress(vars["address"])

	allowed, err := s.registry.IsAllowed(r.Context(), vars["id"], addr)
	if err != nil {
		writeError(w, http.StatusNotFound, registry.ReasonUnknownAirdrop, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.RegistryAllowedResponse{Airdrop: vars["id"], Address: addr, Allowed: allowed})
}

func (s *Service) handleExpired(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	expired, err := s.registry.IsExpired(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, registry.ReasonUnknownAirdrop, err)
		return
	}
	resp := protocol.RegistryExpiredResponse{Airdrop: id, Expired: expired}
	if exp, err := s.registry.Expiration(id); err == nil && !exp.IsZero() {
		resp.Expiration = uint64(exp.Unix())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
