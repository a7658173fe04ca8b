package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/occasync/occasync"
)

const listingsPageSize = 50

type createListingRequest struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Category    string      `json:"category"`
	Price       interface{} `json:"price"`
	Condition   string      `json:"condition"`
	Location    string      `json:"location"`
}

type updateListingRequest struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Category    *string  `json:"category"`
	Price       *float64 `json:"price"`
	Condition   *string  `json:"condition"`
	Location    *string  `json:"location"`
}

func (s *Server) handleGetListings(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	filter := occasync.Filter{"status": "active"}

	if category := params.Get("category"); category != "" && category != "all" {
		filter["category"] = category
	}

	if search := params.Get("search"); search != "" {
		filter["$or"] = []occasync.Filter{
			{"title": occasync.Filter{"$regex": search, "$options": "i"}},
			{"description": occasync.Filter{"$regex": search, "$options": "i"}},
		}
	}

	minPrice := params.Get("minPrice")
	maxPrice := params.Get("maxPrice")
	if minPrice != "" || maxPrice != "" {
		price := occasync.Filter{}
		if f, err := strconv.ParseFloat(minPrice, 64); err == nil {
			price["$gte"] = f
		}
		if f, err := strconv.ParseFloat(maxPrice, 64); err == nil {
			price["$lte"] = f
		}
		filter["price"] = price
	}

	if condition := params.Get("condition"); condition != "" {
		filter["condition"] = condition
	}

	if location := params.Get("location"); location != "" {
		filter["location"] = occasync.Filter{"$regex": location, "$options": "i"}
	}

	results, err := s.db.Collection("listings").
		Find(filter).
		Sort("createdAt", occasync.Descending).
		Limit(listingsPageSize).
		All(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"listings": emptyIfNil(results)})
}

func (s *Server) handleCreateListing(w http.ResponseWriter, r *http.Request) {
	principal, err := s.auth.Authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.rateLimit(r, "listings:create:"+principal.UserID, 30); err != nil {
		writeError(w, err)
		return
	}

	var req createListingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	price, ok := coercePrice(req.Price)
	if !ok || price <= 0 {
		writeError(w, badRequest("invalid price"))
		return
	}
	if len(req.Title) < 3 || len(req.Description) < 10 || !allowedCategories[req.Category] {
		writeError(w, badRequest("invalid listing data"))
		return
	}
	condition := req.Condition
	if condition == "" {
		condition = "good"
	}
	if !allowedConditions[condition] || len(req.Location) > 200 {
		writeError(w, badRequest("invalid listing data"))
		return
	}

	listing := occasync.Record{
		"id":          occasync.NewID(),
		"title":       req.Title,
		"description": req.Description,
		"category":    req.Category,
		"price":       price,
		"condition":   condition,
		"location":    req.Location,
		"sellerId":    principal.UserID,
		"status":      "active",
		"views":       0,
		"createdAt":   time.Now().UTC().Format(time.RFC3339Nano),
	}

	if _, err := s.db.Collection("listings").InsertOne(r.Context(), listing); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"listing": listing.Clone()})
}

func (s *Server) handleGetListing(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	listings := s.db.Collection("listings")

	listing, err := listings.FindOne(r.Context(), occasync.Filter{"id": id})
	if err != nil {
		writeError(w, err)
		return
	}
	if listing == nil {
		writeError(w, notFound("listing not found"))
		return
	}

	if _, err := listings.UpdateOne(r.Context(), occasync.Filter{"id": id},
		occasync.Update{Inc: map[string]float64{"views": 1}}); err != nil {
		s.logger.Warn("view count increment failed", "listing", id, "error", err)
	}

	seller, err := s.db.Collection("users").FindOne(r.Context(),
		occasync.Filter{"id": listing.StringField("sellerId")})
	if err != nil {
		writeError(w, err)
		return
	}

	out := listing.Clone()
	if seller != nil {
		out["seller"] = occasync.Record{
			"id":       seller.ID(),
			"company":  seller["company"],
			"verified": seller["verified"],
		}
	} else {
		out["seller"] = nil
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"listing": out})
}

func (s *Server) handleUpdateListing(w http.ResponseWriter, r *http.Request) {
	principal, err := s.auth.Authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.rateLimit(r, "listings:update:"+principal.UserID, 60); err != nil {
		writeError(w, err)
		return
	}

	var req updateListingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	id := r.PathValue("id")
	listings := s.db.Collection("listings")

	listing, err := listings.FindOne(r.Context(), occasync.Filter{"id": id})
	if err != nil {
		writeError(w, err)
		return
	}
	if listing == nil {
		writeError(w, notFound("listing not found"))
		return
	}
	if listing.StringField("sellerId") != principal.UserID {
		writeError(w, occasync.ErrForbidden)
		return
	}

	set := occasync.Record{}
	if req.Title != nil {
		if len(*req.Title) < 3 {
			writeError(w, badRequest("invalid listing data"))
			return
		}
		set["title"] = *req.Title
	}
	if req.Description != nil {
		if len(*req.Description) < 10 {
			writeError(w, badRequest("invalid listing data"))
			return
		}
		set["description"] = *req.Description
	}
	if req.Category != nil {
		if !allowedCategories[*req.Category] {
			writeError(w, badRequest("invalid listing data"))
			return
		}
		set["category"] = *req.Category
	}
	if req.Price != nil {
		if *req.Price <= 0 {
			writeError(w, badRequest("invalid price"))
			return
		}
		set["price"] = *req.Price
	}
	if req.Condition != nil {
		if !allowedConditions[*req.Condition] {
			writeError(w, badRequest("invalid listing data"))
			return
		}
		set["condition"] = *req.Condition
	}
	if req.Location != nil {
		if len(*req.Location) > 200 {
			writeError(w, badRequest("invalid listing data"))
			return
		}
		set["location"] = *req.Location
	}
	set["updatedAt"] = time.Now().UTC().Format(time.RFC3339Nano)

	if _, err := listings.UpdateOne(r.Context(), occasync.Filter{"id": id},
		occasync.Update{Set: set}); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "listing updated"})
}

func (s *Server) handleDeleteListing(w http.ResponseWriter, r *http.Request) {
	principal, err := s.auth.Authenticate(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.rateLimit(r, "listings:delete:"+principal.UserID, 20); err != nil {
		writeError(w, err)
		return
	}

	id := r.PathValue("id")
	listings := s.db.Collection("listings")

	listing, err := listings.FindOne(r.Context(), occasync.Filter{"id": id})
	if err != nil {
		writeError(w, err)
		return
	}
	if listing == nil {
		writeError(w, notFound("listing not found"))
		return
	}
	if listing.StringField("sellerId") != principal.UserID && principal.Role != "admin" {
		writeError(w, occasync.ErrForbidden)
		return
	}

	if _, err := listings.DeleteOne(r.Context(), occasync.Filter{"id": id}); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "listing deleted"})
}

// emptyIfNil keeps list responses as [] instead of null
func emptyIfNil(records []occasync.Record) []occasync.Record {
	if records == nil {
		return []occasync.Record{}
	}
	return records
}
