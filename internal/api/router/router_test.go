package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"sports-manager/backend/config"
	"sports-manager/backend/internal/api/handler"
	"sports-manager/backend/internal/dto"
	"sports-manager/backend/internal/service"
	"sports-manager/backend/pkg/jwt"
	"sports-manager/backend/pkg/redis"
	"sports-manager/backend/pkg/response"
)

// ── 桩服务：只实现路由测试会调用的方法 ──

type stubRuleService struct {
	service.AssignmentRuleService
}

func (stubRuleService) List(_ context.Context, _ *dto.AssignmentRuleListRequest) ([]dto.AssignmentRuleResponse, int64, error) {
	return []dto.AssignmentRuleResponse{{ID: "rule-1"}}, 1, nil
}

type stubRunService struct {
	service.AssignmentRunService
}

func (stubRunService) RunRule(_ context.Context, ruleID string, opts service.RunOptions) (*dto.RunResponse, error) {
	return &dto.RunResponse{ID: "run-1", RuleID: ruleID, DryRun: opts.DryRun, Status: "success"}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 8080, RunRateLimit: 2},
		Auth:   config.AuthConfig{JWTSecret: "router-test-secret-0123456789", Issuer: "league-admin", AccessTokenTTL: time.Hour},
	}
}

func setupRouter(t *testing.T, rdb *redis.Client) (http.Handler, *jwt.Manager) {
	t.Helper()
	cfg := testConfig()
	mgr := jwt.NewManager(&cfg.Auth)
	h := &handler.Handler{
		Rule: handler.NewAssignmentRuleHandler(stubRuleService{}),
		Run:  handler.NewAssignmentRunHandler(stubRunService{}),
	}
	r, err := Setup(cfg, h, mgr, rdb, zap.NewNop())
	if err != nil {
		t.Fatalf("初始化路由失败: %v", err)
	}
	return r, mgr
}

func do(r http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func token(t *testing.T, mgr *jwt.Manager, role string) string {
	t.Helper()
	tok, err := mgr.GenerateAccessToken("user-"+role, role, 0)
	if err != nil {
		t.Fatalf("签发令牌失败: %v", err)
	}
	return tok
}

func TestRouter_Health(t *testing.T) {
	r, _ := setupRouter(t, nil)
	w := do(r, "GET", "/health", "", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("响应应携带 X-Request-ID")
	}
}

func TestRouter_RequiresToken(t *testing.T) {
	r, _ := setupRouter(t, nil)

	w := do(r, "GET", "/api/v1/assignment-rules", "", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	w = do(r, "GET", "/api/v1/assignment-rules", "not-a-jwt", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("非法令牌期望 401，实际 %d", w.Code)
	}
}

func TestRouter_RoleChecks(t *testing.T) {
	r, mgr := setupRouter(t, nil)
	viewer := token(t, mgr, jwt.RoleViewer)
	assignor := token(t, mgr, jwt.RoleAssignor)

	if w := do(r, "GET", "/api/v1/assignment-rules", viewer, ""); w.Code != http.StatusOK {
		t.Errorf("viewer 可读取规则列表，实际 %d", w.Code)
	}
	if w := do(r, "POST", "/api/v1/assignment-rules", viewer, `{}`); w.Code != http.StatusForbidden {
		t.Errorf("viewer 不可创建规则，实际 %d", w.Code)
	}
	if w := do(r, "POST", "/api/v1/assignment-rules", assignor, `{}`); w.Code != http.StatusForbidden {
		t.Errorf("assignor 不可创建规则，实际 %d", w.Code)
	}
	if w := do(r, "POST", "/api/v1/assignment-rules/rule-1/run", viewer, `{"dry_run":true}`); w.Code != http.StatusForbidden {
		t.Errorf("viewer 不可触发运行，实际 %d", w.Code)
	}

	w := do(r, "POST", "/api/v1/assignment-rules/rule-1/run", assignor, `{"dry_run":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("assignor 可触发运行，实际 %d: %s", w.Code, w.Body.String())
	}
	var resp response.Response
	json.Unmarshal(w.Body.Bytes(), &resp)
	data, _ := resp.Data.(map[string]interface{})
	if data["rule_id"] != "rule-1" || data["dry_run"] != true {
		t.Errorf("运行响应错误: %v", resp.Data)
	}
}

func TestRouter_RunRateLimitAndRevocation(t *testing.T) {
	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	rdb := redis.Wrap(raw, zap.NewNop())

	r, mgr := setupRouter(t, rdb)
	admin := token(t, mgr, jwt.RoleAdmin)

	for i := 0; i < 2; i++ {
		if w := do(r, "POST", "/api/v1/assignment-rules/rule-1/run", admin, `{}`); w.Code != http.StatusOK {
			t.Fatalf("第 %d 次运行应放行，实际 %d", i+1, w.Code)
		}
	}
	if w := do(r, "POST", "/api/v1/assignment-rules/rule-1/run", admin, `{}`); w.Code != http.StatusTooManyRequests {
		t.Errorf("超过限额应返回 429，实际 %d", w.Code)
	}
	// 其他接口不受运行限流影响
	if w := do(r, "GET", "/api/v1/assignment-rules", admin, ""); w.Code != http.StatusOK {
		t.Errorf("列表接口不应被限流，实际 %d", w.Code)
	}

	claims, err := mgr.ParseToken(admin)
	if err != nil {
		t.Fatal(err)
	}
	if err := rdb.BlacklistToken(context.Background(), claims.ID, time.Hour); err != nil {
		t.Fatal(err)
	}
	if w := do(r, "GET", "/api/v1/assignment-rules", admin, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("吊销后的令牌应返回 401，实际 %d", w.Code)
	}
}
