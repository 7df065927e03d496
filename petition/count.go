package petition

import (
	"fmt"
	"net/http"
	"time"

	"petition-gateway/petition/domain"
)

type totalResponse struct {
	Total int64 `json:"total"`
}

type byRegionResponse struct {
	Total    int64            `json:"total"`
	ByRegion map[string]int64 `json:"byRegion"`
}

type regionResponse struct {
	Region string `json:"region"`
	Count  int64  `json:"count"`
}

func (h *handler) count(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if q.Has("region") {
		code, n, err := h.counter.One(r.Context(), q.Get("region"))
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		h.cacheable(w)
		writeJSON(w, http.StatusOK, regionResponse{Region: code, Count: n})
		return
	}

	switch q.Get("group") {
	case "":
		total, err := h.counter.Total(r.Context())
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		h.cacheable(w)
		writeJSON(w, http.StatusOK, totalResponse{Total: total})
	case "region":
		byRegion, err := h.counter.ByRegion(r.Context())
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		var total int64
		for _, n := range byRegion {
			total += n
		}
		h.cacheable(w)
		writeJSON(w, http.StatusOK, byRegionResponse{Total: total, ByRegion: byRegion})
	default:
		writeValidation(w, http.StatusBadRequest, "group", domain.CodeInvalid)
	}
}

// cacheable deixa CDN e navegador guardarem a resposta pelo TTL do snapshot.
func (h *handler) cacheable(w http.ResponseWriter) {
	secs := int(h.counter.TTL() / time.Second)
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", secs))
}
