package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/valter-silva-au/chatrange/internal/observability"
)

type alertsMock struct {
	evaluateFn func() ([]observability.Alert, error)
}

func (m *alertsMock) Evaluate() ([]observability.Alert, error) {
	return m.evaluateFn()
}

func staticAlerts(alerts ...observability.Alert) *alertsMock {
	return &alertsMock{evaluateFn: func() ([]observability.Alert, error) { return alerts, nil }}
}

func setAlertsFlags(t *testing.T, notify, asJSON bool) {
	t.Helper()
	origEngine, origNotifier := AlertEngine, Notifier
	origNotify, origJSON := alertsNotify, alertsJSON
	t.Cleanup(func() {
		AlertEngine, Notifier = origEngine, origNotifier
		alertsNotify, alertsJSON = origNotify, origJSON
	})
	alertsNotify, alertsJSON = notify, asJSON
}

func TestAlertsCmd_NilEngine(t *testing.T) {
	setAlertsFlags(t, false, false)
	AlertEngine = nil

	err := alertsCmd.RunE(alertsCmd, []string{})
	if err == nil {
		t.Fatal("expected error when AlertEngine is nil")
	}
	if !strings.Contains(err.Error(), "not initialized") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAlertsCmd_NoAlerts(t *testing.T) {
	setAlertsFlags(t, true, false)
	AlertEngine = staticAlerts()
	mock := &notifierMock{}
	Notifier = mock
	out := captureOutput(t, alertsCmd)

	if err := alertsCmd.RunE(alertsCmd, []string{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "No active alerts.") {
		t.Errorf("unexpected output %q", out.String())
	}
	if len(mock.notified) != 0 {
		t.Error("nothing should be sent without alerts")
	}
}

func TestAlertsCmd_WithAlerts(t *testing.T) {
	setAlertsFlags(t, false, false)
	AlertEngine = staticAlerts(
		observability.Alert{Severity: observability.SeverityHigh, Message: "most sessions failed", TriggeredAt: time.Now().UTC()},
		observability.Alert{Severity: observability.SeverityLow, Message: "session left waiting", TriggeredAt: time.Now().UTC()},
	)
	out := captureOutput(t, alertsCmd)

	if err := alertsCmd.RunE(alertsCmd, []string{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"2 active alert(s)", "[HIGH] most sessions failed", "[LOW] session left waiting"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestAlertsCmd_JSON(t *testing.T) {
	setAlertsFlags(t, false, true)
	AlertEngine = staticAlerts(observability.Alert{ID: "capture-failure-rate", Severity: observability.SeverityHigh})
	out := captureOutput(t, alertsCmd)

	if err := alertsCmd.RunE(alertsCmd, []string{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var alerts []observability.Alert
	if err := json.Unmarshal(out.Bytes(), &alerts); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if len(alerts) != 1 || alerts[0].ID != "capture-failure-rate" {
		t.Errorf("unexpected alerts %+v", alerts)
	}
}

func TestAlertsCmd_EvaluateError(t *testing.T) {
	setAlertsFlags(t, false, false)
	AlertEngine = &alertsMock{
		evaluateFn: func() ([]observability.Alert, error) {
			return nil, fmt.Errorf("event log read error")
		},
	}

	err := alertsCmd.RunE(alertsCmd, []string{})
	if err == nil {
		t.Fatal("expected error from Evaluate")
	}
	if !strings.Contains(err.Error(), "evaluating alerts") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAlertsCmd_Notify(t *testing.T) {
	alert := observability.Alert{Severity: observability.SeverityMedium, Message: "searches keep missing", TriggeredAt: time.Now().UTC()}

	t.Run("without notifier", func(t *testing.T) {
		setAlertsFlags(t, true, false)
		AlertEngine = staticAlerts(alert)
		Notifier = nil
		captureOutput(t, alertsCmd)

		err := alertsCmd.RunE(alertsCmd, []string{})
		if err == nil || !strings.Contains(err.Error(), "notifications not configured") {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("success", func(t *testing.T) {
		setAlertsFlags(t, true, false)
		AlertEngine = staticAlerts(alert)
		mock := &notifierMock{}
		Notifier = mock
		out := captureOutput(t, alertsCmd)

		if err := alertsCmd.RunE(alertsCmd, []string{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(mock.notified) != 1 || len(mock.notified[0]) != 1 {
			t.Fatalf("expected one notification with one alert, got %+v", mock.notified)
		}
		if !strings.Contains(out.String(), "Alerts sent.") {
			t.Errorf("unexpected output:\n%s", out.String())
		}
	})

	t.Run("webhook error", func(t *testing.T) {
		setAlertsFlags(t, true, false)
		AlertEngine = staticAlerts(alert)
		Notifier = &notifierMock{err: fmt.Errorf("webhook failed")}
		captureOutput(t, alertsCmd)

		err := alertsCmd.RunE(alertsCmd, []string{})
		if err == nil || !strings.Contains(err.Error(), "sending alerts") {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
