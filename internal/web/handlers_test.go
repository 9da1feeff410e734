package web

import (
	"net/http"
	"net/url"
	"strings"
	"testing"
)

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.get("/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Body.String() != "ok" {
		t.Errorf("body = %q, want ok", w.Body.String())
	}
}

func TestRegisterPageRendersEmployeeForm(t *testing.T) {
	env := newTestEnv(t)

	w := env.get("/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	if !strings.Contains(body, `action="/register/employee"`) {
		t.Error("expected employee form")
	}
	if !strings.Contains(body, `value="2024-05-02"`) {
		t.Error("expected date defaulted to today")
	}
	if strings.Contains(body, `name="visitorName"`) {
		t.Error("visitor section should be hidden")
	}
}

func TestRegisterEmployeeInvalid(t *testing.T) {
	env := newTestEnv(t)

	w := env.postForm("/register/employee", url.Values{"employeeEmail": {"nope"}}, nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
	}
	body := w.Body.String()
	for _, msg := range []string{"Employee number is required", "Name is required", "Department is required", "Invalid email"} {
		if !strings.Contains(body, msg) {
			t.Errorf("expected %q in body", msg)
		}
	}
}

func TestRegisterEmployeeRevealsVisitorSection(t *testing.T) {
	env := newTestEnv(t)

	form := validForm()
	w := env.postForm("/register/employee", form, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	if !strings.Contains(body, `name="visitorName"`) {
		t.Error("expected visitor section")
	}
	if !strings.Contains(body, `value="Jordan Lee"`) {
		t.Error("expected employee name carried forward")
	}
}

func TestRegisterSubmitCreatesPendingVisit(t *testing.T) {
	env := newTestEnv(t)

	w := env.postForm("/register", validForm(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "Visit registered for Sam Rivera") {
		t.Error("expected success message")
	}

	doc, ok := env.store.Document("visits", "r1")
	if !ok {
		t.Fatal("expected stored visit r1")
	}
	if doc.Fields["arrived"] != false || doc.Fields["didNotArrive"] != false {
		t.Errorf("flags = %v/%v, want false/false", doc.Fields["arrived"], doc.Fields["didNotArrive"])
	}
	if doc.Fields["visitorName"] != "Sam Rivera" {
		t.Errorf("visitorName = %v", doc.Fields["visitorName"])
	}
}

func TestRegisterSubmitInvalidStoresNothing(t *testing.T) {
	env := newTestEnv(t)

	form := validForm()
	form.Set("visitorPhone", "")
	form.Set("time", "2pm")
	w := env.postForm("/register", form, nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
	}
	body := w.Body.String()
	if !strings.Contains(body, "Visitor phone is required") || !strings.Contains(body, "Time must be HH:MM") {
		t.Errorf("expected field errors, got %s", body)
	}
	if _, ok := env.store.Document("visits", "r1"); ok {
		t.Error("invalid submission should not be stored")
	}
}

func TestDashboardRedirectsWithoutSession(t *testing.T) {
	env := newTestEnv(t)

	w := env.get("/dashboard", nil)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}
	if loc := w.Header().Get("Location"); loc != "/login" {
		t.Errorf("location = %q, want /login", loc)
	}
}

func TestDashboardTodayShowsOnlyToday(t *testing.T) {
	env := newTestEnv(t)
	env.addVisit(t, "Today Visitor", "2024-05-02")
	env.addVisit(t, "Tomorrow Visitor", "2024-05-03")

	w := env.get("/dashboard", env.session(t, testAdmin))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	if !strings.Contains(body, "Today Visitor") {
		t.Error("expected today's visit")
	}
	if strings.Contains(body, "Tomorrow Visitor") {
		t.Error("tomorrow's visit should be filtered out")
	}
}

func TestDashboardAllWithDate(t *testing.T) {
	env := newTestEnv(t)
	env.addVisit(t, "Today Visitor", "2024-05-02")
	env.addVisit(t, "Tomorrow Visitor", "2024-05-03")
	cookie := env.session(t, testAdmin)

	body := env.get("/dashboard?view=all", cookie).Body.String()
	if !strings.Contains(body, "Today Visitor") || !strings.Contains(body, "Tomorrow Visitor") {
		t.Error("expected every visit in All view")
	}

	body = env.get("/dashboard?view=all&date=2024-05-03", cookie).Body.String()
	if strings.Contains(body, "Today Visitor") || !strings.Contains(body, "Tomorrow Visitor") {
		t.Error("expected only the explicit date")
	}
}

func TestDashboardBadDate(t *testing.T) {
	env := newTestEnv(t)

	w := env.get("/dashboard?view=all&date=05/03/2024", env.session(t, testAdmin))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestDashboardTransitionShowsNotice(t *testing.T) {
	env := newTestEnv(t)
	id := env.addVisit(t, "Sam Rivera", "2024-05-02")
	cookie := env.session(t, testAdmin)

	w := env.postForm("/visits/"+id+"/arrived", url.Values{"view": {"today"}}, cookie)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}
	doc, _ := env.store.Document("visits", id)
	if doc.Fields["arrived"] != true || doc.Fields["didNotArrive"] != false {
		t.Errorf("flags = %v/%v, want true/false", doc.Fields["arrived"], doc.Fields["didNotArrive"])
	}

	body := env.get(w.Header().Get("Location"), cookie).Body.String()
	if !strings.Contains(body, "Visitor arrival confirmed") {
		t.Error("expected success notice")
	}
	if !strings.Contains(body, "status-arrived") {
		t.Error("expected arrived row after snapshot")
	}
}

func TestDashboardTransitionFailureNotice(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.session(t, testAdmin)

	w := env.postForm("/visits/missing/no-show", url.Values{"view": {"all"}}, cookie)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}
	body := env.get(w.Header().Get("Location"), cookie).Body.String()
	if !strings.Contains(body, "Failed to update visitor status") {
		t.Errorf("expected failure notice, got %s", body)
	}
}

func TestDashboardExport(t *testing.T) {
	env := newTestEnv(t)
	env.addVisit(t, "Sam Rivera", "2024-05-02")

	w := env.get("/dashboard/export?view=all&date=2024-05-02", env.session(t, testAdmin))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "visits_2024-05-02.csv") {
		t.Errorf("content-disposition = %q", cd)
	}
	lines := strings.Split(strings.TrimRight(w.Body.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if !strings.HasPrefix(lines[0], `"Employee Number","Employee Name"`) {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasSuffix(lines[1], `"Pending"`) {
		t.Errorf("row = %q", lines[1])
	}
}

func TestDashboardExportEmpty(t *testing.T) {
	env := newTestEnv(t)

	w := env.get("/dashboard/export?view=all", env.session(t, testAdmin))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if !strings.Contains(w.Body.String(), "There are no visits to export") {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestDashboardStaleAfterSubscriptionError(t *testing.T) {
	env := newTestEnv(t)
	env.addVisit(t, "Sam Rivera", "2024-05-02")
	cookie := env.session(t, testAdmin)

	active := env.store.Active()
	if len(active) != 1 {
		t.Fatalf("active subscriptions = %d, want 1", len(active))
	}
	active[0].Fail(errPermission)

	body := env.get("/dashboard", cookie).Body.String()
	if !strings.Contains(body, "Live updates stopped") {
		t.Error("expected stale warning")
	}
	if !strings.Contains(body, "Sam Rivera") {
		t.Error("expected last known visits")
	}

	w := env.postForm("/dashboard/refresh", nil, cookie)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("refresh status = %d", w.Code)
	}
	if strings.Contains(env.get("/dashboard", cookie).Body.String(), "Live updates stopped") {
		t.Error("expected refresh to clear the error")
	}
}

func TestSettingsCreateAndRevokeKey(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.session(t, testAdmin)

	w := env.postForm("/settings/keys", url.Values{"name": {"laptop"}}, cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "fd_") {
		t.Error("expected raw key to be shown once")
	}

	body := env.get("/settings", cookie).Body.String()
	if !strings.Contains(body, "laptop") {
		t.Error("expected key in list")
	}
	if !strings.Contains(body, "Staff") {
		t.Error("expected admin staff section")
	}
}

func TestSettingsChangePasswordMismatch(t *testing.T) {
	env := newTestEnv(t)

	w := env.postForm("/settings/password", url.Values{"password": {"longenough1"}, "confirm": {"different1"}}, env.session(t, testAdmin))
	if !strings.Contains(w.Body.String(), "Passwords do not match") {
		t.Error("expected mismatch error")
	}
}
