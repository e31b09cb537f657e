package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/JonMunkholm/fiscal/internal/audit"
	"github.com/JonMunkholm/fiscal/internal/config"
	"github.com/JonMunkholm/fiscal/internal/core"
	"github.com/JonMunkholm/fiscal/internal/fiscal"
	"github.com/JonMunkholm/fiscal/internal/store"
	"github.com/JonMunkholm/fiscal/internal/testutil"
)

const testAccessKey = "35240112345678000199550010000012341000012345"

func nfeXML(gross string) []byte {
	return []byte(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<nfeProc xmlns="http://www.portalfiscal.inf.br/nfe" versao="4.00">
  <NFe>
    <infNFe Id="NFe%s" versao="4.00">
      <ide><serie>1</serie><nNF>1234</nNF><dhEmi>2024-01-15T10:30:00-03:00</dhEmi></ide>
      <emit><CNPJ>12345678000199</CNPJ><xNome>Fornecedor Exemplo LTDA</xNome></emit>
      <total><ICMSTot><vNF>%s</vNF><vTotTrib>12.50</vTotTrib></ICMSTot></total>
    </infNFe>
  </NFe>
</nfeProc>`, testAccessKey, gross))
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RequestTimeout: 10 * time.Second},
		Upload: config.UploadConfig{
			MaxFileSize:   1 << 20,
			MaxConcurrent: 2,
			MaxWaitTime:   time.Second,
			Timeout:       10 * time.Second,
		},
		Rate:     config.RateLimitConfig{Enabled: false},
		Security: config.SecurityConfig{EnableCSP: true},
		Ingest:   config.IngestConfig{DefaultCompanyID: 1, DefaultUserID: 1},
	}
}

type testServer struct {
	*Server
	store *store.SQLiteStore
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}

	st := testutil.OpenTestStore(t)
	local, err := audit.NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalBackend() error = %v", err)
	}
	trail := audit.NewTrail(nil, local, st.Queries(), audit.Options{})
	srv := NewServer(core.NewService(st, trail, cfg), cfg)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testServer{Server: srv, store: st}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, fileName string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/importar-xml", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func formRequest(path string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func (s *testServer) importNFe(t *testing.T, gross string) int64 {
	t.Helper()
	rec := s.do(uploadRequest(t, "nota.xml", nfeXML(gross), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("import status = %d, body = %s", rec.Code, rec.Body)
	}
	return decode[importResponse](t, rec).DocumentID
}

func TestImportXML(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(uploadRequest(t, "nota.xml", nfeXML("100.00"), map[string]string{"empresa_id": "1"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	first := decode[importResponse](t, rec)
	if !first.Success || first.DocumentID == 0 || first.Kind != fiscal.KindNFe {
		t.Fatalf("response = %+v", first)
	}
	if first.Message != "XML importado com sucesso" {
		t.Errorf("message = %q", first.Message)
	}

	again := s.importNFe(t, "150.00")
	if again != first.DocumentID {
		t.Errorf("re-import id = %d, want %d", again, first.DocumentID)
	}
}

func TestImportXML_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		data     []byte
		fields   map[string]string
		wantCode int
		wantErr  string
	}{
		{"pdf disguised as xml", "fake.xml", []byte("%PDF-1.7\n..."), nil, http.StatusBadRequest, "ING001"},
		{"wrong extension", "nota.pdf", nfeXML("1.00"), nil, http.StatusBadRequest, "ING001"},
		{"malformed xml", "nota.xml", []byte("<nfeProc><NFe>"), nil, http.StatusBadRequest, "ING003"},
		{"missing supplier", "nota.xml", []byte(`<nfeProc><infNFe Id="NFe1"><total><vNF>1</vNF></total></infNFe></nfeProc>`), nil, http.StatusBadRequest, "ING004"},
		{"bad company id", "nota.xml", nfeXML("1.00"), map[string]string{"empresa_id": "abc"}, http.StatusBadRequest, "VAL001"},
	}

	s := newTestServer(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(uploadRequest(t, tt.file, tt.data, tt.fields))
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantCode, rec.Body)
			}
			body := decode[ErrorResponse](t, rec)
			if body.Success || body.Code != tt.wantErr || body.Error == "" {
				t.Errorf("body = %+v, want code %s", body, tt.wantErr)
			}
		})
	}
}

func TestImportXML_NoFile(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(formRequest("/api/importar-xml", url.Values{"empresa_id": {"1"}}))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestImportXML_TooLarge(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.Upload.MaxFileSize = 64 })

	rec := s.do(uploadRequest(t, "nota.xml", nfeXML("1.00"), nil))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
	if body := decode[ErrorResponse](t, rec); body.Code != "ING007" {
		t.Errorf("code = %s, want ING007", body.Code)
	}
}

func TestWorkflowEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	id := s.importNFe(t, "100.00")
	path := fmt.Sprintf("/api/documentos-fiscais/%d", id)

	// Blank comment is rejected before anything changes.
	rec := s.do(formRequest(path+"/confirmar", url.Values{"comentarios": {"  "}}))
	if rec.Code != http.StatusBadRequest || decode[ErrorResponse](t, rec).Code != "WF001" {
		t.Fatalf("blank comment: status = %d", rec.Code)
	}

	rec = s.do(formRequest(path+"/confirmar", url.Values{"comentarios": {"ok"}, "usuario_id": {"7"}}))
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm status = %d, body = %s", rec.Code, rec.Body)
	}
	confirmed := decode[workflowResponse](t, rec)
	if !confirmed.Success || confirmed.NewStatus != fiscal.StatusProvisioned || !confirmed.AuditRecorded {
		t.Errorf("confirm = %+v", confirmed)
	}
	if confirmed.Message != "Documento confirmado com sucesso" {
		t.Errorf("message = %q", confirmed.Message)
	}

	rec = s.do(formRequest(path+"/confirmar", url.Values{"comentarios": {"de novo"}}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("second confirm status = %d, want 400", rec.Code)
	}
	if body := decode[ErrorResponse](t, rec); body.Code != "WF002" || !strings.Contains(body.Error, "PROVISIONADO") {
		t.Errorf("second confirm body = %+v", body)
	}

	review := httptest.NewRequest(http.MethodPost, path+"/revisar", strings.NewReader(`{"comentarios":"valor divergente","usuario_id":7}`))
	review.Header.Set("Content-Type", "application/json")
	rec = s.do(review)
	if rec.Code != http.StatusOK {
		t.Fatalf("review status = %d, body = %s", rec.Code, rec.Body)
	}
	if got := decode[workflowResponse](t, rec); got.NewStatus != fiscal.StatusReview {
		t.Errorf("review status = %s, want REVISAR", got.NewStatus)
	}

	rec = s.do(httptest.NewRequest(http.MethodGet, path+"/historico", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d", rec.Code)
	}
	var history struct {
		Success    bool   `json:"sucesso"`
		DocumentID int64  `json:"documento_id"`
		Total      int    `json:"total_acoes"`
		History    []struct {
			Action    string `json:"acao"`
			ActorID   int64  `json:"usuario_id"`
			ActorName string `json:"usuario_nome"`
		} `json:"historico"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&history); err != nil {
		t.Fatal(err)
	}
	if !history.Success || history.DocumentID != id || history.Total != 2 {
		t.Fatalf("history = %+v", history)
	}
	if history.History[0].Action != "CONFIRMAR" || history.History[1].Action != "REVISAR" {
		t.Errorf("actions = %+v", history.History)
	}
	if history.History[0].ActorName != audit.UnknownActorName(7) {
		t.Errorf("actor name = %q", history.History[0].ActorName)
	}
}

func TestWorkflowEndpoints_UnknownAndInvalidIDs(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name     string
		req      *http.Request
		wantCode int
		wantErr  string
	}{
		{"confirm unknown", formRequest("/api/documentos-fiscais/999/confirmar", url.Values{"comentarios": {"ok"}}), http.StatusNotFound, "WF003"},
		{"history unknown", httptest.NewRequest(http.MethodGet, "/api/documentos-fiscais/999/historico", nil), http.StatusNotFound, "WF003"},
		{"detail unknown", httptest.NewRequest(http.MethodGet, "/api/documentos-fiscais/999", nil), http.StatusNotFound, "WF003"},
		{"non numeric id", formRequest("/api/documentos-fiscais/abc/revisar", url.Values{"comentarios": {"ok"}}), http.StatusBadRequest, "VAL001"},
		{"bad json", func() *http.Request {
			r := httptest.NewRequest(http.MethodPost, "/api/documentos-fiscais/1/confirmar", strings.NewReader("{"))
			r.Header.Set("Content-Type", "application/json")
			return r
		}(), http.StatusBadRequest, "VAL001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(tt.req)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if body := decode[ErrorResponse](t, rec); body.Code != tt.wantErr {
				t.Errorf("code = %s, want %s", body.Code, tt.wantErr)
			}
		})
	}
}

func TestDocumentEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	id := s.importNFe(t, "150.00")

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/documentos-fiscais?tipo_documento=NF-e&data_inicial=2024-01-01&data_final=2024-12-31", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, body = %s", rec.Code, rec.Body)
	}
	list := decode[listResponse](t, rec)
	if list.Total != 1 || len(list.Documents) != 1 {
		t.Fatalf("list = %+v", list)
	}
	doc := list.Documents[0]
	if doc.ID != id || doc.GrossAmount != 150 || doc.SupplierName != "Fornecedor Exemplo LTDA" || doc.Status != fiscal.StatusPending {
		t.Errorf("document = %+v", doc)
	}

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/documentos-fiscais?tipo_documento=NFS-e", nil))
	if got := decode[listResponse](t, rec); got.Total != 0 || got.Documents == nil {
		t.Errorf("filtered list = %+v, want empty array", got)
	}

	rec = s.do(httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/documentos-fiscais/%d", id), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("detail status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "infNFe") {
		t.Error("detail leaks raw XML")
	}
	detail := decode[documentDTO](t, rec)
	if detail.AccessKey != testAccessKey || detail.TaxAmount != 12.5 {
		t.Errorf("detail = %+v", detail)
	}

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/documentos-fiscais?data_inicial=15/01/2024", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad date status = %d, want 400", rec.Code)
	}
}

func TestLogin(t *testing.T) {
	s := newTestServer(t, nil)
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	id := testutil.SeedUser(t, s.store, "Ana Paula", "ana@example.com", string(hash))

	login := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		return s.do(req)
	}

	rec := login(`{"email":"ana@example.com","senha":"s3cret"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	got := decode[loginResponse](t, rec)
	if !got.Success || got.User.ID != id || got.User.Name != "Ana Paula" {
		t.Errorf("login = %+v", got)
	}

	rec = login(`{"email":"ana@example.com","senha":"errada"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password status = %d, want 401", rec.Code)
	}
	if body := decode[ErrorResponse](t, rec); body.Code != "AUTH001" {
		t.Errorf("code = %s, want AUTH001", body.Code)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decode[healthResponse](t, rec)
	if got.Status != "ok" || got.Dialect != "sqlite" || got.AuditBackend != "local" || got.Ingest.MaxConcurrent != 2 {
		t.Errorf("health = %+v", got)
	}
	for _, h := range []string{"X-Content-Type-Options", "X-Frame-Options", "Content-Security-Policy"} {
		if rec.Header().Get(h) == "" {
			t.Errorf("missing header %s", h)
		}
	}
}

func TestAPIKeyRequired(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.Security.RequireAPIKey = true
		c.Security.APIKeys = []string{"segredo"}
	})

	if rec := s.do(httptest.NewRequest(http.MethodGet, "/api/health", nil)); rec.Code != http.StatusOK {
		t.Errorf("health without key = %d, want 200", rec.Code)
	}
	if rec := s.do(httptest.NewRequest(http.MethodGet, "/api/documentos-fiscais", nil)); rec.Code != http.StatusUnauthorized {
		t.Errorf("list without key = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/documentos-fiscais", nil)
	req.Header.Set("X-API-Key", "segredo")
	if rec := s.do(req); rec.Code != http.StatusOK {
		t.Errorf("list with key = %d, want 200", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2, UploadLimit: 1}
	})

	for i := 0; i < 2; i++ {
		if rec := s.do(httptest.NewRequest(http.MethodGet, "/api/health", nil)); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}
	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
	if body := decode[ErrorResponse](t, rec); body.Code != "RATE001" {
		t.Errorf("code = %s, want RATE001", body.Code)
	}
}

func TestRateLimiter_WindowReset(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		rate:     1,
		window:   time.Minute,
		now:      func() time.Time { return now },
	}

	if !rl.allow("a") || rl.allow("a") {
		t.Fatal("expected one request per window")
	}
	if !rl.allow("b") {
		t.Error("limits must be per address")
	}
	now = now.Add(61 * time.Second)
	if !rl.allow("a") {
		t.Error("window did not reset")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&fiscal.DecodeError{Encoding: "utf-8"}, http.StatusBadRequest},
		{&fiscal.MalformedXMLError{Err: errors.New("eof")}, http.StatusBadRequest},
		{&fiscal.MissingRequiredFieldError{Fields: []string{"cnpj_fornecedor"}}, http.StatusBadRequest},
		{&fiscal.InvalidFieldFormatError{Field: "valor_total", Value: "x"}, http.StatusBadRequest},
		{&fiscal.InvalidTransitionError{Action: fiscal.ActionConfirm, Current: fiscal.StatusPaid}, http.StatusBadRequest},
		{&core.FileTooLargeError{Size: 2, Limit: 1}, http.StatusRequestEntityTooLarge},
		{fmt.Errorf("read: %w", store.ErrNotFound), http.StatusNotFound},
		{core.ErrInvalidCredentials, http.StatusUnauthorized},
		{core.ErrTooManyUploads, http.StatusTooManyRequests},
		{store.ErrUniqueViolation, http.StatusConflict},
		{&fiscal.DocumentIDResolutionError{AccessKey: "k"}, http.StatusInternalServerError},
		{errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
