package petition

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strings"
	"net/url"

	"petition-gateway/middleware/ratelimit"
	"petition-gateway/petition/domain"
)

// MaxBodyBytes limita o corpo de POST /api/sign.
const MaxBodyBytes = 64 << 10

// turnstileField é o nome do campo que o widget do Turnstile injeta no form.
const turnstileField = "cf-turnstile-response"

type signRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	City      string `json:"city"`
	Region    string `json:"region"`
	Role      string `json:"role"`
	Message   string `json:"message"`
	Token     string `json:"token"`
	Turnstile string `json:"cf-turnstile-response"`
	Redirect  string `json:"redirect"`
}

type signResponse struct {
	Status string `json:"status"`
	ID     string `json:"id"`
}

func (h *handler) sign(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	req, status, code := decodeSignRequest(r)
	if code != "" {
		writeValidation(w, status, "body", code)
		return
	}

	token := req.Token
	if token == "" {
		token = req.Turnstile
	}
	// o valor validado é o mesmo usado no Location
	redirect := strings.TrimSpace(req.Redirect)
	if redirect == "" {
		redirect = strings.TrimSpace(r.URL.Query().Get("redirect"))
	}

	ip := ratelimit.ClientIP(r, h.keyHdr, h.trustXF)
	sub := domain.Submission{
		Name:        req.Name,
		Email:       req.Email,
		City:        req.City,
		Region:      req.Region,
		Role:        req.Role,
		Message:     req.Message,
		Token:       token,
		Redirect:    redirect,
		RemoteIP:    ip,
		Fingerprint: h.fp.Of(ip),
	}

	res, err := h.signer.Sign(r.Context(), sub)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if !res.Created {
		h.logger.Debug("duplicate signature",
			"component", "http",
			"fingerprint", sub.Fingerprint,
		)
	}
	// o validador já conferiu a origem do redirect
	if sub.Redirect != "" {
		http.Redirect(w, r, sub.Redirect, http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, signResponse{Status: "ok", ID: res.Signature.ID})
}

// decodeSignRequest lê o corpo conforme o Content-Type. Em falha devolve o
// status e o código para o campo "body".
func decodeSignRequest(r *http.Request) (signRequest, int, string) {
	var req signRequest
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return req, http.StatusUnsupportedMediaType, domain.CodeInvalid
	}

	switch mediaType {
	case "application/json":
		dec := json.NewDecoder(r.Body)
		if err := dec.Decode(&req); err != nil {
			return req, bodyErrStatus(err), bodyErrCode(err)
		}
		return req, 0, ""
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return req, bodyErrStatus(err), bodyErrCode(err)
		}
	case "multipart/form-data":
		if err := r.ParseMultipartForm(MaxBodyBytes); err != nil {
			return req, bodyErrStatus(err), bodyErrCode(err)
		}
	default:
		return req, http.StatusUnsupportedMediaType, domain.CodeInvalid
	}
	return formRequest(r.PostForm), 0, ""
}

func formRequest(form url.Values) signRequest {
	return signRequest{
		Name:      form.Get("name"),
		Email:     form.Get("email"),
		City:      form.Get("city"),
		Region:    form.Get("region"),
		Role:      form.Get("role"),
		Message:   form.Get("message"),
		Token:     form.Get("token"),
		Turnstile: form.Get(turnstileField),
		Redirect:  form.Get("redirect"),
	}
}

func bodyErrStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func bodyErrCode(err error) string {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return domain.CodeTooLong
	}
	return domain.CodeInvalid
}
