package httpapi

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/occasync/occasync"
)

type sendMessageRequest struct {
	ReceiverID string `json:"receiverId"`
	ListingID  string `json:"listingId"`
	Content    string `json:"content"`
}

// conversationID is stable regardless of who messages first
func conversationID(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, "-")
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	principal, err := s.auth.Authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}

	filter := occasync.Filter{
		"$or": []occasync.Filter{
			{"senderId": principal.UserID},
			{"receiverId": principal.UserID},
		},
	}
	if convID := r.URL.Query().Get("conversationId"); convID != "" {
		filter["conversationId"] = convID
	}

	results, err := s.db.Collection("messages").
		Find(filter).
		Sort("createdAt", occasync.Ascending).
		All(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": emptyIfNil(results)})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	principal, err := s.auth.Authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.rateLimit(r, "messages:send:"+principal.UserID, 120); err != nil {
		writeError(w, err)
		return
	}

	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.ReceiverID == "" || req.Content == "" || len(req.Content) > 2000 {
		writeError(w, badRequest("receiver and message content are required"))
		return
	}

	message := occasync.Record{
		"id":             occasync.NewID(),
		"conversationId": conversationID(principal.UserID, req.ReceiverID),
		"senderId":       principal.UserID,
		"receiverId":     req.ReceiverID,
		"listingId":      nilIfEmpty(req.ListingID),
		"content":        req.Content,
		"read":           false,
		"createdAt":      time.Now().UTC().Format(time.RFC3339Nano),
	}

	if _, err := s.db.Collection("messages").InsertOne(r.Context(), message); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"data": message.Clone()})
}

func (s *Server) handleGetConversations(w http.ResponseWriter, r *http.Request) {
	principal, err := s.auth.Authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}

	all, err := s.db.Collection("messages").
		Find(occasync.Filter{
			"$or": []occasync.Filter{
				{"senderId": principal.UserID},
				{"receiverId": principal.UserID},
			},
		}).
		Sort("createdAt", occasync.Descending).
		All(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	// Group newest-first: the first message seen per conversation is its
	// last message
	type conversation struct {
		ConversationID string          `json:"conversationId"`
		LastMessage    occasync.Record `json:"lastMessage"`
		UnreadCount    int             `json:"unreadCount"`
	}

	var order []string
	byID := make(map[string]*conversation)
	for _, msg := range all {
		convID := msg.StringField("conversationId")
		conv, ok := byID[convID]
		if !ok {
			conv = &conversation{ConversationID: convID, LastMessage: msg}
			byID[convID] = conv
			order = append(order, convID)
		}
		if msg.StringField("receiverId") == principal.UserID && msg["read"] == false {
			conv.UnreadCount++
		}
	}

	conversations := make([]*conversation, 0, len(order))
	for _, convID := range order {
		conversations = append(conversations, byID[convID])
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"conversations": conversations})
}

func (s *Server) handleMarkMessageRead(w http.ResponseWriter, r *http.Request) {
	principal, err := s.auth.Authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		MessageID string `json:"messageId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	messages := s.db.Collection("messages")
	message, err := messages.FindOne(r.Context(), occasync.Filter{"id": req.MessageID})
	if err != nil {
		writeError(w, err)
		return
	}
	if message == nil {
		writeError(w, notFound("message not found"))
		return
	}
	if message.StringField("receiverId") != principal.UserID {
		writeError(w, occasync.ErrForbidden)
		return
	}

	if _, err := messages.UpdateOne(r.Context(), occasync.Filter{"id": req.MessageID},
		occasync.Update{Set: occasync.Record{"read": true}}); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "message marked as read"})
}

func (s *Server) handleGetUnreadCount(w http.ResponseWriter, r *http.Request) {
	principal, err := s.auth.Authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}

	count, err := s.db.Collection("messages").CountDocuments(r.Context(), occasync.Filter{
		"receiverId": principal.UserID,
		"read":       false,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"unreadCount": count})
}

func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
