package poll

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func newTestRouter(s *Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(s, nil, 60)
	r := gin.New()
	r.POST("/api/questions", h.Create)
	r.POST("/api/questions/stop", h.Stop)
	r.POST("/api/students", h.RegisterStudent)
	r.POST("/api/students/:id/kick", h.Kick)
	r.POST("/api/answers", h.Submit)
	r.POST("/api/reset", h.Reset)
	r.GET("/api/question", h.Question)
	r.GET("/api/results", h.Results)
	r.GET("/api/time-remaining", h.TimeRemaining)
	r.GET("/api/eligibility", h.Eligibility)
	r.GET("/api/history", h.History)
	r.GET("/api/students", h.Students)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateQuestionEndpoint(t *testing.T) {
	s, _ := newTestStore()
	r := newTestRouter(s)

	w := doJSON(t, r, http.MethodPost, "/api/questions", gin.H{
		"text": "2+2?", "options": []string{"3", "4"}, "duration_sec": 30,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var body struct {
		Success bool `json:"success"`
		Data    struct {
			ID      string   `json:"id"`
			Text    string   `json:"text"`
			Options []string `json:"options"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success || body.Data.ID == "" || body.Data.Text != "2+2?" || len(body.Data.Options) != 2 {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}

func TestCreateQuestionEndpointErrors(t *testing.T) {
	s, _ := newTestStore()
	s.RegisterStudent("stu", "Sam")
	r := newTestRouter(s)

	tests := []struct {
		name string
		body interface{}
		want int
	}{
		{"missing text", gin.H{"options": []string{"a", "b"}}, http.StatusBadRequest},
		{"one option", gin.H{"text": "q?", "options": []string{"a"}}, http.StatusBadRequest},
		{"not json", "plain", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, r, http.MethodPost, "/api/questions", tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d, body = %s", w.Code, tt.want, w.Body.String())
			}
		})
	}

	// Second create while the first is open and unanswered conflicts.
	if w := doJSON(t, r, http.MethodPost, "/api/questions", gin.H{"text": "q?", "options": []string{"a", "b"}}); w.Code != http.StatusCreated {
		t.Fatalf("first create: %d", w.Code)
	}
	if w := doJSON(t, r, http.MethodPost, "/api/questions", gin.H{"text": "q2?", "options": []string{"a", "b"}}); w.Code != http.StatusConflict {
		t.Errorf("second create status = %d, want 409", w.Code)
	}
}

func TestSubmitEndpointReportsRejectionInBody(t *testing.T) {
	s, _ := newTestStore()
	r := newTestRouter(s)

	// No question yet: still HTTP 200, the outcome rides in the body.
	w := doJSON(t, r, http.MethodPost, "/api/answers", gin.H{"student_id": "stu", "option_index": 0})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var body struct {
		Data SubmitResult `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.Accepted || body.Data.Reason != ReasonNoActiveQuestion {
		t.Errorf("result = %+v", body.Data)
	}

	// option_index 0 must survive binding; a missing index must not.
	doJSON(t, r, http.MethodPost, "/api/questions", gin.H{"text": "q?", "options": []string{"a", "b"}})
	w = doJSON(t, r, http.MethodPost, "/api/answers", gin.H{"student_id": "stu", "option_index": 0})
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Data.Accepted {
		t.Errorf("option_index 0 rejected: %+v", body.Data)
	}
	if w = doJSON(t, r, http.MethodPost, "/api/answers", gin.H{"student_id": "stu"}); w.Code != http.StatusBadRequest {
		t.Errorf("missing option_index status = %d, want 400", w.Code)
	}
}

func TestQuestionAndResultsEndpoints(t *testing.T) {
	s, _ := newTestStore()
	r := newTestRouter(s)

	if w := doJSON(t, r, http.MethodGet, "/api/question", nil); w.Code != http.StatusNotFound {
		t.Errorf("question status = %d, want 404", w.Code)
	}
	if w := doJSON(t, r, http.MethodGet, "/api/results", nil); w.Code != http.StatusNotFound {
		t.Errorf("results status = %d, want 404", w.Code)
	}

	doJSON(t, r, http.MethodPost, "/api/questions", gin.H{"text": "q?", "options": []string{"a", "b"}})
	doJSON(t, r, http.MethodPost, "/api/answers", gin.H{"student_id": "s1", "option_index": 1})

	w := doJSON(t, r, http.MethodGet, "/api/results", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("results status = %d", w.Code)
	}
	var body struct {
		Data struct {
			Counts []int `json:"counts"`
			Total  int   `json:"total"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.Total != 1 || body.Data.Counts[1] != 1 {
		t.Errorf("results = %+v", body.Data)
	}
}

func TestStopEndpoint(t *testing.T) {
	s, clock := newTestStore()
	r := newTestRouter(s)

	if w := doJSON(t, r, http.MethodPost, "/api/questions/stop", nil); w.Code != http.StatusNotFound {
		t.Errorf("stop without question status = %d, want 404", w.Code)
	}

	doJSON(t, r, http.MethodPost, "/api/questions", gin.H{"text": "q?", "options": []string{"a", "b"}, "duration_sec": 30})
	clock.Advance(10 * time.Second)

	w := doJSON(t, r, http.MethodPost, "/api/questions/stop", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stop status = %d", w.Code)
	}
	var body struct {
		Data struct {
			Stopped     bool  `json:"stopped"`
			RemainingMS int64 `json:"remaining_ms"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Data.Stopped || body.Data.RemainingMS != 20000 {
		t.Errorf("stop body = %+v", body.Data)
	}
}

func TestKickEndpointThenSubmit(t *testing.T) {
	s, _ := newTestStore()
	r := newTestRouter(s)

	doJSON(t, r, http.MethodPost, "/api/students", gin.H{"id": "stu", "name": "Sam"})
	doJSON(t, r, http.MethodPost, "/api/questions", gin.H{"text": "q?", "options": []string{"a", "b"}})
	if w := doJSON(t, r, http.MethodPost, "/api/students/stu/kick", nil); w.Code != http.StatusOK {
		t.Fatalf("kick status = %d", w.Code)
	}

	w := doJSON(t, r, http.MethodPost, "/api/answers", gin.H{"student_id": "stu", "option_index": 0})
	var body struct {
		Data SubmitResult `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.Accepted || body.Data.Reason != ReasonStudentKicked {
		t.Errorf("result = %+v", body.Data)
	}
}

func TestEligibilityAndHistoryEndpoints(t *testing.T) {
	s, clock := newTestStore()
	r := newTestRouter(s)

	var elig struct {
		Data struct {
			CanAsk bool `json:"can_ask_new_question"`
		} `json:"data"`
	}
	w := doJSON(t, r, http.MethodGet, "/api/eligibility", nil)
	if err := json.Unmarshal(w.Body.Bytes(), &elig); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !elig.Data.CanAsk {
		t.Error("empty store must be eligible")
	}

	doJSON(t, r, http.MethodPost, "/api/questions", gin.H{"text": "first?", "options": []string{"a", "b"}, "duration_sec": 10})
	clock.Advance(11 * time.Second)
	doJSON(t, r, http.MethodPost, "/api/questions", gin.H{"text": "second?", "options": []string{"a", "b"}, "duration_sec": 10})

	w = doJSON(t, r, http.MethodGet, "/api/history", nil)
	var hist struct {
		Data []struct {
			Text string `json:"text"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &hist); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(hist.Data) != 1 || hist.Data[0].Text != "first?" {
		t.Errorf("history = %+v", hist.Data)
	}
}

func TestHistoryEndpointEmptyWithoutMirror(t *testing.T) {
	s, _ := newTestStore()
	r := newTestRouter(s)

	// Nothing archived and no durable mirror to fall back to: an empty list.
	w := doJSON(t, r, http.MethodGet, "/api/history", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var hist struct {
		Data []struct{} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &hist); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(hist.Data) != 0 {
		t.Errorf("history = %+v, want empty", hist.Data)
	}
}

func TestResetEndpoint(t *testing.T) {
	s, _ := newTestStore()
	r := newTestRouter(s)

	doJSON(t, r, http.MethodPost, "/api/students", gin.H{"id": "stu"})
	doJSON(t, r, http.MethodPost, "/api/questions", gin.H{"text": "q?", "options": []string{"a", "b"}})
	if w := doJSON(t, r, http.MethodPost, "/api/reset", nil); w.Code != http.StatusOK {
		t.Fatalf("reset status = %d", w.Code)
	}
	if w := doJSON(t, r, http.MethodGet, "/api/question", nil); w.Code != http.StatusNotFound {
		t.Errorf("question after reset status = %d, want 404", w.Code)
	}
	var students struct {
		Data []struct{} `json:"data"`
	}
	w := doJSON(t, r, http.MethodGet, "/api/students", nil)
	if err := json.Unmarshal(w.Body.Bytes(), &students); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(students.Data) != 0 {
		t.Errorf("students after reset = %d, want 0", len(students.Data))
	}
}
