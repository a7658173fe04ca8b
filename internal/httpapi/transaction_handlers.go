package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/occasync/occasync"
)

func (s *Server) handleGetTransactions(w http.ResponseWriter, r *http.Request) {
	principal, err := s.auth.Authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}

	results, err := s.db.Collection("transactions").
		Find(occasync.Filter{
			"$or": []occasync.Filter{
				{"buyerId": principal.UserID},
				{"sellerId": principal.UserID},
			},
		}).
		Sort("createdAt", occasync.Descending).
		All(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": emptyIfNil(results)})
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	principal, err := s.auth.Authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.rateLimit(r, "transactions:create:"+principal.UserID, 20); err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		ListingID string `json:"listingId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.ListingID == "" {
		writeError(w, badRequest("listing id is required"))
		return
	}

	listing, err := s.db.Collection("listings").FindOne(r.Context(),
		occasync.Filter{"id": req.ListingID})
	if err != nil {
		writeError(w, err)
		return
	}
	if listing == nil {
		writeError(w, notFound("listing not found"))
		return
	}
	if listing.StringField("sellerId") == principal.UserID {
		writeError(w, badRequest("cannot purchase your own listing"))
		return
	}

	transactionID := occasync.NewID()
	transaction := occasync.Record{
		"id":            transactionID,
		"listingId":     req.ListingID,
		"buyerId":       principal.UserID,
		"sellerId":      listing.StringField("sellerId"),
		"amount":        listing["price"],
		"status":        "pending",
		"invoiceNumber": fmt.Sprintf("INV-%d", time.Now().UnixMilli()),
		"invoiceUrl":    nil,
		"createdAt":     time.Now().UTC().Format(time.RFC3339Nano),
	}

	transactions := s.db.Collection("transactions")
	if _, err := transactions.InsertOne(r.Context(), transaction); err != nil {
		writeError(w, err)
		return
	}

	// Simulated payment: the transaction settles after a short delay.
	// The request's context is long gone by then, so use a fresh one.
	time.AfterFunc(s.settleDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		_, err := transactions.UpdateOne(ctx, occasync.Filter{"id": transactionID},
			occasync.Update{Set: occasync.Record{
				"status": "paid",
				"paidAt": time.Now().UTC().Format(time.RFC3339Nano),
			}})
		if err != nil {
			s.logger.Error("transaction settlement failed", "transaction", transactionID, "error", err)
		}
	})

	writeJSON(w, http.StatusCreated, map[string]interface{}{"transaction": transaction.Clone()})
}

func (s *Server) handleUpdateTransactionStatus(w http.ResponseWriter, r *http.Request) {
	principal, err := s.auth.Authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.rateLimit(r, "transactions:update:"+principal.UserID, 60); err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if !allowedStatuses[req.Status] {
		writeError(w, badRequest("invalid status"))
		return
	}

	id := r.PathValue("id")
	transactions := s.db.Collection("transactions")

	transaction, err := transactions.FindOne(r.Context(), occasync.Filter{"id": id})
	if err != nil {
		writeError(w, err)
		return
	}
	if transaction == nil {
		writeError(w, notFound("transaction not found"))
		return
	}
	if transaction.StringField("sellerId") != principal.UserID && principal.Role != "admin" {
		writeError(w, occasync.ErrForbidden)
		return
	}

	if _, err := transactions.UpdateOne(r.Context(), occasync.Filter{"id": id},
		occasync.Update{Set: occasync.Record{
			"status":    req.Status,
			"updatedAt": time.Now().UTC().Format(time.RFC3339Nano),
		}}); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "status updated"})
}
