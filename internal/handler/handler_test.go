package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-mail-router/internal/mailer"
	"smart-mail-router/internal/model"
	"smart-mail-router/internal/pipeline"
	"smart-mail-router/internal/provider"
	"smart-mail-router/internal/repository"
	"smart-mail-router/internal/scheduler"
	"smart-mail-router/internal/spam"
)

type fakeStore struct {
	rules     map[uint]*model.RoutingRule
	providers map[string]*model.Provider
	settings  *model.Settings
	reports   map[uint]*model.Report
	purgeDays []int
	nextID    uint
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rules: map[uint]*model.RoutingRule{
			1: {ID: 1, Name: "Default", SubjectPatterns: "*", DefaultProviderName: "other", Enabled: true, Priority: model.DefaultRulePriority},
		},
		providers: map[string]*model.Provider{
			"google": {ID: 1, Name: "google", Server: "smtp.gmail.com", Port: 587, Encryption: model.EncryptionTLS, AuthRequired: true, Username: "me@gmail.com", Password: "sealed:app-password", Configured: true},
		},
		settings: &model.Settings{ID: 1, DefaultProviderName: "other", AntiSpamEndPoint: "https://spam.test", AntiSpamAPIKey: "sealed:key", TestRecipient: "admin@example.com", SpamTestMessage: "free prize", LogsRetentionDays: 30},
		reports:  map[uint]*model.Report{5: {ID: 5, Subject: "Hello", Status: model.ReportSent}},
		nextID:   10,
	}
}

func (f *fakeStore) ListRules(ctx context.Context, filter repository.RuleFilter) ([]model.RoutingRule, error) {
	var out []model.RoutingRule
	for _, r := range f.rules {
		if filter.Enabled == nil || *filter.Enabled == r.Enabled {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) GetRule(ctx context.Context, id uint) (*model.RoutingRule, error) {
	r, ok := f.rules[id]
	if !ok {
		return nil, fmt.Errorf("rule: %w", repository.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (f *fakeStore) CreateRule(ctx context.Context, rule *model.RoutingRule) error {
	if rule.Name == "" {
		return fmt.Errorf("%w: rule name is required", repository.ErrInvalid)
	}
	f.nextID++
	rule.ID = f.nextID
	cp := *rule
	f.rules[rule.ID] = &cp
	return nil
}

func (f *fakeStore) UpdateRule(ctx context.Context, id uint, update *model.RoutingRule) (*model.RoutingRule, error) {
	existing, err := f.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.IsDefault() && update.Priority != existing.Priority {
		return nil, fmt.Errorf("%w: default rule", repository.ErrProtected)
	}
	cp := *update
	f.rules[id] = &cp
	return &cp, nil
}

func (f *fakeStore) SetRuleEnabled(ctx context.Context, id uint, enabled bool) (*model.RoutingRule, error) {
	r, ok := f.rules[id]
	if !ok {
		return nil, fmt.Errorf("rule: %w", repository.ErrNotFound)
	}
	r.Enabled = enabled
	cp := *r
	return &cp, nil
}

func (f *fakeStore) DeleteRule(ctx context.Context, id uint) error {
	r, ok := f.rules[id]
	if !ok {
		return fmt.Errorf("rule: %w", repository.ErrNotFound)
	}
	if r.IsDefault() {
		return fmt.Errorf("%w: the default rule cannot be deleted", repository.ErrProtected)
	}
	delete(f.rules, id)
	return nil
}

func (f *fakeStore) ListProviders(ctx context.Context, filter repository.ProviderFilter) ([]model.Provider, error) {
	var out []model.Provider
	for _, p := range f.providers {
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeStore) GetProviderByName(ctx context.Context, name string) (*model.Provider, error) {
	p, ok := f.providers[name]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) CreateProvider(ctx context.Context, p *model.Provider, password string) error {
	if _, ok := f.providers[p.Name]; ok {
		return fmt.Errorf("provider %q: %w", p.Name, repository.ErrConflict)
	}
	if password != "" {
		p.Password = "sealed:" + password
	}
	p.Configured = p.IsConfigured()
	f.providers[p.Name] = p
	return nil
}

func (f *fakeStore) UpdateProvider(ctx context.Context, name string, update *model.Provider, password *string) (*model.Provider, error) {
	p, ok := f.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q: %w", name, repository.ErrNotFound)
	}
	p.Server = update.Server
	p.Port = update.Port
	if password != nil {
		p.Password = "sealed:" + *password
	}
	return p, nil
}

func (f *fakeStore) DeleteProvider(ctx context.Context, name string) error {
	if _, ok := f.providers[name]; !ok {
		return fmt.Errorf("provider %q: %w", name, repository.ErrNotFound)
	}
	delete(f.providers, name)
	return nil
}

func (f *fakeStore) GetSettings(ctx context.Context) (*model.Settings, error) {
	if f.settings == nil {
		return nil, nil
	}
	cp := *f.settings
	return &cp, nil
}

func (f *fakeStore) UpdateSettings(ctx context.Context, update repository.SettingsUpdate) (*model.Settings, error) {
	if update.LogsRetentionDays != nil {
		if *update.LogsRetentionDays < 0 {
			return nil, fmt.Errorf("%w: negative retention", repository.ErrInvalid)
		}
		f.settings.LogsRetentionDays = *update.LogsRetentionDays
	}
	if update.AntiSpamAPIKey != nil {
		f.settings.AntiSpamAPIKey = "sealed:" + *update.AntiSpamAPIKey
	}
	return f.GetSettings(ctx)
}

func (f *fakeStore) ListReports(ctx context.Context, filter repository.ReportFilter) ([]model.Report, int64, error) {
	var out []model.Report
	for _, r := range f.reports {
		if filter.Status == "" || filter.Status == r.Status {
			out = append(out, *r)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeStore) GetReport(ctx context.Context, id uint) (*model.Report, error) {
	r, ok := f.reports[id]
	if !ok {
		return nil, fmt.Errorf("report: %w", repository.ErrNotFound)
	}
	return r, nil
}

func (f *fakeStore) DeleteReport(ctx context.Context, id uint) error {
	if _, ok := f.reports[id]; !ok {
		return fmt.Errorf("report: %w", repository.ErrNotFound)
	}
	delete(f.reports, id)
	return nil
}

func (f *fakeStore) DeleteReportsOlderThan(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, fmt.Errorf("%w: retention days must be greater than 0", repository.ErrInvalid)
	}
	f.purgeDays = append(f.purgeDays, days)
	return 3, nil
}

func (f *fakeStore) PurgeExpiredReports(ctx context.Context) (int64, error) {
	return f.DeleteReportsOlderThan(ctx, f.settings.LogsRetentionDays)
}

type fakeBox struct{}

func (fakeBox) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	const prefix = "sealed:"
	if len(ciphertext) < len(prefix) || ciphertext[:len(prefix)] != prefix {
		return "", errors.New("cannot open")
	}
	return ciphertext[len(prefix):], nil
}

type fakeInterceptor struct {
	result pipeline.Result
	got    model.MailPayload
}

func (f *fakeInterceptor) Intercept(ctx context.Context, payload model.MailPayload) pipeline.Result {
	f.got = payload
	return f.result
}

type fakeRelay struct {
	result  *mailer.SendResult
	err     error
	testTo  string
	testVia provider.Connection
}

func (f *fakeRelay) Send(ctx context.Context, payload model.MailPayload) (*mailer.SendResult, error) {
	return f.result, f.err
}

func (f *fakeRelay) SendTest(ctx context.Context, conn provider.Connection, to string) error {
	f.testTo = to
	f.testVia = conn
	return f.err
}

type fakeSpam struct {
	decision  spam.Decision
	validErr  error
	gotKey    string
	gotURL    string
	gotMessage string
}

func (f *fakeSpam) Decide(ctx context.Context, message, apiKey, endpoint string) spam.Decision {
	f.gotMessage, f.gotKey, f.gotURL = message, apiKey, endpoint
	return f.decision
}

func (f *fakeSpam) ValidateKey(ctx context.Context, apiKey, endpoint string) error {
	f.gotKey, f.gotURL = apiKey, endpoint
	return f.validErr
}

type fakeJob struct {
	running  bool
	runs     int
	startErr error
}

func (f *fakeJob) Start() error {
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	return nil
}
func (f *fakeJob) Stop() error     { f.running = false; return nil }
func (f *fakeJob) IsRunning() bool { return f.running }
func (f *fakeJob) RunOnce(ctx context.Context) (int64, error) {
	f.runs++
	return 2, nil
}
func (f *fakeJob) Status() scheduler.Status {
	return scheduler.Status{Running: f.running, Schedule: "0 30 3 * * *"}
}

type testEnv struct {
	router      *gin.Engine
	store       *fakeStore
	interceptor *fakeInterceptor
	relay       *fakeRelay
	spam        *fakeSpam
	job         *fakeJob
}

func newTestEnv() *testEnv {
	return newTestEnvWith(true)
}

func newTestEnvWith(exposeCredentials bool) *testEnv {
	gin.SetMode(gin.TestMode)
	env := &testEnv{
		store:       newFakeStore(),
		interceptor: &fakeInterceptor{},
		relay:       &fakeRelay{},
		spam:        &fakeSpam{},
		job:         &fakeJob{},
	}
	h := NewHandlers(Options{
		Store:       env.store,
		Interceptor: env.interceptor,
		Relay:       env.relay,
		Spam:        env.spam,
		Scheduler:   env.job,
		Box:         fakeBox{},
		Ping:        func(ctx context.Context) error { return nil },

		ExposeCredentials: exposeCredentials,
	})
	env.router = gin.New()
	h.SetupRoutes(env.router)
	return env
}

func (e *testEnv) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestInterceptMailReturnsDecision(t *testing.T) {
	env := newTestEnv()
	env.interceptor.result = pipeline.Result{
		TraceID: "trace-1",
		State:   pipeline.StateLogged,
		Payload: model.MailPayload{To: []string{"team@example.com"}, Subject: "Newsletter: July", Message: "Hi"},
		Rule:    &model.RoutingRule{ID: 2, Name: "Newsletters", Priority: 10},
		Connection: &provider.Connection{
			Name: "google", Host: "smtp.gmail.com", Port: 587, Encryption: model.EncryptionTLS,
			Username: "me@gmail.com", Password: "app-password",
		},
		ReportID: 9,
		Trace:    []string{"Rule: Newsletters (id 2, priority 10)"},
	}

	payload := model.MailPayload{To: []string{"user@example.com"}, Subject: "Newsletter: July", Message: "Hi"}
	w := env.do(http.MethodPost, "/api/v1/mail/intercept", payload)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, payload.To, env.interceptor.got.To)

	var resp InterceptResponse
	decode(t, w, &resp)
	assert.Equal(t, "trace-1", resp.TraceID)
	assert.False(t, resp.PassThrough)
	require.NotNil(t, resp.Rule)
	assert.Equal(t, "Newsletters", resp.Rule.Name)
	require.NotNil(t, resp.Connection)
	assert.Equal(t, "google", resp.Connection.Provider)
	assert.True(t, resp.Connection.Auth)
	assert.Equal(t, "app-password", resp.Connection.Password)
	assert.Equal(t, []string{"team@example.com"}, resp.Payload.To)
	assert.Equal(t, uint(9), resp.ReportID)
}

func TestInterceptMailHidesPasswordWithoutAPIKey(t *testing.T) {
	env := newTestEnvWith(false)
	env.interceptor.result = pipeline.Result{
		TraceID: "trace-3",
		State:   pipeline.StateLogged,
		Connection: &provider.Connection{
			Name: "google", Host: "smtp.gmail.com", Port: 587, Encryption: model.EncryptionTLS,
			Username: "me@gmail.com", Password: "app-password",
		},
	}

	w := env.do(http.MethodPost, "/api/v1/mail/intercept", model.MailPayload{To: []string{"user@example.com"}, Subject: "Hi"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "app-password")

	var resp InterceptResponse
	decode(t, w, &resp)
	require.NotNil(t, resp.Connection)
	assert.True(t, resp.Connection.Auth)
	assert.Equal(t, "me@gmail.com", resp.Connection.Username)
	assert.Empty(t, resp.Connection.Password)
}

func TestInterceptMailPassThrough(t *testing.T) {
	env := newTestEnv()
	original := model.MailPayload{To: []string{"user@example.com"}, Subject: "Hi"}
	env.interceptor.result = pipeline.Result{
		TraceID:     "trace-2",
		State:       pipeline.StatePassThrough,
		PassThrough: true,
		Payload:     original,
		Err:         provider.ErrNoProvider,
	}

	w := env.do(http.MethodPost, "/api/v1/mail/intercept", original)
	require.Equal(t, http.StatusOK, w.Code)

	var resp InterceptResponse
	decode(t, w, &resp)
	assert.True(t, resp.PassThrough)
	assert.Nil(t, resp.Connection)
	assert.Equal(t, provider.ErrNoProvider.Error(), resp.Error)
	assert.Equal(t, original, resp.Payload)
	assert.NotNil(t, resp.Trace)
}

func TestInterceptMailRejectsMalformedJSON(t *testing.T) {
	env := newTestEnv()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/mail/intercept", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendMail(t *testing.T) {
	env := newTestEnv()
	env.relay.result = &mailer.SendResult{TraceID: "trace-3", Outcome: mailer.OutcomeDelivered, Provider: "google"}

	w := env.do(http.MethodPost, "/api/v1/mail/send", model.MailPayload{To: []string{"a@example.com"}, Subject: "Hi"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	decode(t, w, &resp)
	assert.Equal(t, "delivered", resp["outcome"])

	env.relay.err = errors.New("535 authentication failed")
	env.relay.result = &mailer.SendResult{TraceID: "trace-4", Provider: "google"}
	w = env.do(http.MethodPost, "/api/v1/mail/send", model.MailPayload{To: []string{"a@example.com"}, Subject: "Hi"})
	require.Equal(t, http.StatusBadGateway, w.Code)
	decode(t, w, &resp)
	assert.Equal(t, "535 authentication failed", resp["error"])
}

func TestRuleEndpoints(t *testing.T) {
	env := newTestEnv()

	w := env.do(http.MethodPost, "/api/v1/rules", gin.H{"name": "Invoices", "subject_patterns": "*invoice*", "priority": 5})
	require.Equal(t, http.StatusCreated, w.Code)
	var created model.RoutingRule
	decode(t, w, &created)
	assert.NotZero(t, created.ID)
	assert.True(t, created.Enabled)

	w = env.do(http.MethodPost, "/api/v1/rules", gin.H{"name": "Missing patterns"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/api/v1/rules", gin.H{"name": "x", "subject_patterns": "a", "pattern_type": "fuzzy"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/api/v1/rules", gin.H{"name": "", "subject_patterns": "a"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var errResp ErrorResponse
	decode(t, w, &errResp)
	assert.Equal(t, "validation_error", errResp.Error)

	w = env.do(http.MethodPut, fmt.Sprintf("/api/v1/rules/%d", created.ID), gin.H{"name": "Invoices v2"})
	require.Equal(t, http.StatusOK, w.Code)
	var updated model.RoutingRule
	decode(t, w, &updated)
	assert.Equal(t, "Invoices v2", updated.Name)
	assert.Equal(t, "*invoice*", updated.SubjectPatterns)

	w = env.do(http.MethodPatch, fmt.Sprintf("/api/v1/rules/%d/disable", created.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, env.store.rules[created.ID].Enabled)

	w = env.do(http.MethodGet, "/api/v1/rules?enabled=false", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var disabled []model.RoutingRule
	decode(t, w, &disabled)
	assert.Len(t, disabled, 1)

	w = env.do(http.MethodGet, "/api/v1/rules?enabled=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodDelete, fmt.Sprintf("/api/v1/rules/%d", created.ID), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, fmt.Sprintf("/api/v1/rules/%d", created.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodGet, "/api/v1/rules/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDefaultRuleProtection(t *testing.T) {
	env := newTestEnv()

	w := env.do(http.MethodDelete, "/api/v1/rules/1", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(http.MethodPut, "/api/v1/rules/1", gin.H{"priority": 3})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestProviderEndpoints(t *testing.T) {
	env := newTestEnv()

	w := env.do(http.MethodGet, "/api/v1/providers/google", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "app-password")
	assert.NotContains(t, w.Body.String(), "sealed:")

	w = env.do(http.MethodGet, "/api/v1/providers/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodPost, "/api/v1/providers", gin.H{
		"name": "relay", "server": "smtp.relay.test", "port": 25, "encryption": "none", "auth_required": false,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, env.store.providers["relay"].Configured)

	w = env.do(http.MethodPost, "/api/v1/providers", gin.H{"name": "relay"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(http.MethodPut, "/api/v1/providers/relay", gin.H{"server": "smtp2.relay.test", "port": 2525, "password": "pw"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "smtp2.relay.test", env.store.providers["relay"].Server)
	assert.Equal(t, "sealed:pw", env.store.providers["relay"].Password)

	w = env.do(http.MethodDelete, "/api/v1/providers/relay", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestProviderTestSend(t *testing.T) {
	env := newTestEnv()

	w := env.do(http.MethodPost, "/api/v1/providers/google/test", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin@example.com", env.relay.testTo)
	assert.Equal(t, "smtp.gmail.com", env.relay.testVia.Host)
	assert.Equal(t, "app-password", env.relay.testVia.Password)

	w = env.do(http.MethodPost, "/api/v1/providers/google/test", gin.H{"to": "ops@example.com"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ops@example.com", env.relay.testTo)

	env.relay.err = errors.New("connection refused")
	w = env.do(http.MethodPost, "/api/v1/providers/google/test", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	env.store.providers["outlook"] = &model.Provider{Name: "outlook", Server: "smtp.office365.com", Port: 587, AuthRequired: true}
	w = env.do(http.MethodPost, "/api/v1/providers/outlook/test", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSettingsEndpoints(t *testing.T) {
	env := newTestEnv()

	w := env.do(http.MethodGet, "/api/v1/settings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "sealed:key")

	var resp map[string]interface{}
	decode(t, w, &resp)
	assert.Equal(t, true, resp["anti_spam_api_key_set"])
	assert.Equal(t, "other", resp["default_provider_name"])

	w = env.do(http.MethodPatch, "/api/v1/settings", gin.H{"logs_retention_days": 7})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 7, env.store.settings.LogsRetentionDays)

	w = env.do(http.MethodPatch, "/api/v1/settings", gin.H{"logs_retention_days": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSpamEndpoints(t *testing.T) {
	env := newTestEnv()
	env.spam.decision = spam.Decision{Checked: true, IsSpam: true, Score: 8.2, Reason: "score 8.20 is at or above threshold 7"}

	w := env.do(http.MethodPost, "/api/v1/spam/test", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "free prize", env.spam.gotMessage)
	assert.Equal(t, "key", env.spam.gotKey)
	assert.Equal(t, "https://spam.test", env.spam.gotURL)

	var resp struct {
		Decision  spam.Decision `json:"decision"`
		Threshold float64       `json:"threshold"`
	}
	decode(t, w, &resp)
	assert.True(t, resp.Decision.IsSpam)
	assert.Equal(t, spam.Threshold, resp.Threshold)

	w = env.do(http.MethodPost, "/api/v1/spam/validate-key", gin.H{"api_key": "new-key"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "new-key", env.spam.gotKey)
	assert.Equal(t, "https://spam.test", env.spam.gotURL)

	env.spam.validErr = errors.New("unexpected status 401")
	w = env.do(http.MethodPost, "/api/v1/spam/validate-key", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	env.spam.validErr = spam.ErrNotConfigured
	w = env.do(http.MethodPost, "/api/v1/spam/validate-key", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReportEndpoints(t *testing.T) {
	env := newTestEnv()

	w := env.do(http.MethodGet, "/api/v1/reports?status=sent", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list ReportListResponse
	decode(t, w, &list)
	assert.Equal(t, int64(1), list.Pagination.Total)
	assert.Equal(t, 1, list.Pagination.Page)

	w = env.do(http.MethodGet, "/api/v1/reports/5", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodPost, "/api/v1/reports/purge", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(http.MethodPost, "/api/v1/reports/purge", gin.H{"older_than_days": 7})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int{30, 7}, env.store.purgeDays)

	w = env.do(http.MethodPost, "/api/v1/reports/purge", gin.H{"older_than_days": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodDelete, "/api/v1/reports/5", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = env.do(http.MethodDelete, "/api/v1/reports/5", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSchedulerEndpoints(t *testing.T) {
	env := newTestEnv()

	w := env.do(http.MethodPost, "/api/v1/scheduler/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.job.running)
	var started scheduler.Status
	decode(t, w, &started)
	assert.True(t, started.Running)
	assert.Equal(t, "0 30 3 * * *", started.Schedule)

	w = env.do(http.MethodGet, "/api/v1/scheduler/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status scheduler.Status
	decode(t, w, &status)
	assert.True(t, status.Running)

	w = env.do(http.MethodPost, "/api/v1/scheduler/run-once", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, env.job.runs)
	var run RetentionRunResponse
	decode(t, w, &run)
	assert.Equal(t, int64(2), run.Deleted)
	assert.True(t, run.Status.Running)

	w = env.do(http.MethodPost, "/api/v1/scheduler/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, env.job.running)
	var stopped scheduler.Status
	decode(t, w, &stopped)
	assert.False(t, stopped.Running)
}

func TestSchedulerStartFailure(t *testing.T) {
	env := newTestEnv()
	env.job.startErr = errors.New("invalid cron schedule")

	w := env.do(http.MethodPost, "/api/v1/scheduler/start", nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	var resp ErrorResponse
	decode(t, w, &resp)
	assert.Equal(t, "scheduler_error", resp.Error)
	assert.Equal(t, "invalid cron schedule", resp.Message)
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv()

	w := env.do(http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp HealthResponse
	decode(t, w, &resp)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "stopped", resp.Metrics["scheduler"])
	assert.WithinDuration(t, time.Now(), resp.Timestamp, time.Minute)
}
