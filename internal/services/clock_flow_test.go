package services

import (
	"strings"
	"testing"
	"time"

	"github.com/obralink/obrabot-backend/internal/models"
)

func clockContact(sites ...string) *models.ContactEntry {
	contact := &models.ContactEntry{
		Phone:            "912345678",
		CanRegisterClock: true,
		InternalUserID:   "U7",
	}
	if len(sites) > 0 {
		contact.SetSiteIDs(sites)
	}
	return contact
}

func TestStartClockFlowSiteSelection(t *testing.T) {
	t.Run("no sites registers without a site", func(t *testing.T) {
		tr := StartClockFlow("addr", clockContact())
		cmd, ok := tr.Commands[0].(CmdResolveClockState)
		if !ok || cmd.SiteID != "" || cmd.InternalUserID != "U7" {
			t.Fatalf("expected siteless lookup, got %+v", tr.Commands[0])
		}
		if len(tr.Replies) != 0 {
			t.Fatalf("no site prompt expected, got %v", tr.Replies)
		}
	})

	t.Run("single site auto-selects", func(t *testing.T) {
		tr := StartClockFlow("addr", clockContact("obra-A"))
		cmd, ok := tr.Commands[0].(CmdResolveClockState)
		if !ok || cmd.SiteID != "obra-A" {
			t.Fatalf("expected obra-A lookup, got %+v", tr.Commands[0])
		}
	})

	t.Run("multiple sites prompt a numbered list", func(t *testing.T) {
		tr := StartClockFlow("addr", clockContact("obra-A", "obra-B"))
		if len(tr.Commands) != 0 {
			t.Fatalf("no lookup before the site is chosen, got %v", tr.Commands)
		}
		if !strings.Contains(tr.Replies[0], "1. obra-A") || !strings.Contains(tr.Replies[0], "2. obra-B") {
			t.Fatalf("numbered site list missing: %q", tr.Replies[0])
		}
		if tr.Session.State != models.StatePontoWaitingObra {
			t.Fatalf("state = %q, want PONTO_WAITING_OBRA", tr.Session.State)
		}

		// Invalid choice re-prompts, valid choice emits the lookup.
		out := HandleClockMessage(tr.Session, "7")
		if len(out.Commands) != 0 || !strings.Contains(out.Replies[0], "entre 1 e 2") {
			t.Fatalf("expected range re-prompt, got %+v", out)
		}
		out = HandleClockMessage(tr.Session, "2")
		cmd, ok := out.Commands[0].(CmdResolveClockState)
		if !ok || cmd.SiteID != "obra-B" {
			t.Fatalf("expected obra-B lookup, got %+v", out.Commands[0])
		}
	})
}

func TestResolveDirection(t *testing.T) {
	tests := []struct {
		name     string
		last     models.LastClockState
		siteID   string
		want     string
		autoExit bool
		prevSite string
	}{
		{"no open entry", models.LastClockState{}, "obra-A", models.DirectionEntry, false, ""},
		{"open entry same site", models.LastClockState{HasOpenEntry: true, SiteID: "obra-A"}, "obra-A", models.DirectionExit, false, ""},
		{"open entry other site", models.LastClockState{HasOpenEntry: true, SiteID: "obra-A"}, "obra-B", models.DirectionEntry, true, "obra-A"},
		{"open entry siteless", models.LastClockState{HasOpenEntry: true}, "", models.DirectionExit, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			direction, autoExit, prevSite := ResolveDirection(tt.last, tt.siteID)
			if direction != tt.want || autoExit != tt.autoExit || prevSite != tt.prevSite {
				t.Errorf("ResolveDirection(%+v, %q) = (%q, %v, %q), want (%q, %v, %q)",
					tt.last, tt.siteID, direction, autoExit, prevSite, tt.want, tt.autoExit, tt.prevSite)
			}
		})
	}
}

func TestApplyClockStateAsksConfirmation(t *testing.T) {
	session := models.NewConversationSession("addr", models.StatePontoWaitingObra)
	session.Data["user_id"] = "U7"
	session.Data["site_id"] = "obra-B"

	tr := ApplyClockState(session, models.LastClockState{HasOpenEntry: true, SiteID: "obra-A"})

	if session.State != models.StatePontoWaitingConfirmation {
		t.Fatalf("state = %q, want PONTO_WAITING_CONFIRMATION", session.State)
	}
	if session.Data["direction"] != models.DirectionEntry || session.Data["auto_exit"] != "true" {
		t.Fatalf("direction data wrong: %v", session.Data)
	}
	if !strings.Contains(tr.Replies[0], "obra-A") {
		t.Fatalf("auto-exit warning should name the previous site: %q", tr.Replies[0])
	}
}

func TestConfirmationCreatesPendingLocationRequest(t *testing.T) {
	session := models.NewConversationSession("addr", models.StatePontoWaitingConfirmation)
	session.Data["user_id"] = "U7"
	session.Data["site_id"] = "obra-B"
	session.Data["direction"] = models.DirectionEntry
	session.Data["auto_exit"] = "true"
	session.Data["previous_site_id"] = "obra-A"

	tr := HandleClockMessage(session, "sim")

	if tr.Pending == nil {
		t.Fatal("confirmation must produce a pending location request")
	}
	if tr.Session != nil {
		t.Fatal("the session is replaced by the pending request")
	}
	want := models.PendingLocationRequest{
		Address:        "addr",
		InternalUserID: "U7",
		SiteID:         "obra-B",
		Direction:      models.DirectionEntry,
		AutoExit:       true,
		PreviousSiteID: "obra-A",
	}
	got := *tr.Pending
	got.CreatedAt = time.Time{}
	if got != want {
		t.Fatalf("pending = %+v, want %+v", got, want)
	}
	if !strings.Contains(tr.Replies[0], "localização") {
		t.Fatalf("expected location request reply, got %q", tr.Replies[0])
	}
}

func TestCompleteClockRegistrationCommandOrder(t *testing.T) {
	now := time.Date(2026, 8, 31, 9, 30, 0, 0, time.UTC)
	coord := models.Coordinate{Latitude: 38.7223, Longitude: -9.1393}

	t.Run("with automatic exit", func(t *testing.T) {
		pending := &models.PendingLocationRequest{
			Address:        "addr",
			InternalUserID: "U7",
			SiteID:         "obra-B",
			Direction:      models.DirectionEntry,
			AutoExit:       true,
			PreviousSiteID: "obra-A",
		}
		tr := CompleteClockRegistration(pending, coord, now)

		if !tr.DeletePending {
			t.Fatal("pending request must be deleted")
		}
		if len(tr.Commands) != 2 {
			t.Fatalf("expected exit+entry, got %d commands", len(tr.Commands))
		}
		exit := tr.Commands[0].(CmdCreateClockRecord).Request
		if exit.Direction != models.DirectionExit || exit.SiteID != "obra-A" || !exit.AutomaticExit {
			t.Fatalf("first record should exit obra-A automatically: %+v", exit)
		}
		entry := tr.Commands[1].(CmdCreateClockRecord).Request
		if entry.Direction != models.DirectionEntry || entry.SiteID != "obra-B" || entry.AutomaticExit {
			t.Fatalf("second record should enter obra-B: %+v", entry)
		}
		if entry.Coordinate != coord || !entry.RecordedAt.Equal(now) {
			t.Fatalf("coordinate or timestamp not carried: %+v", entry)
		}
	})

	t.Run("plain registration", func(t *testing.T) {
		pending := &models.PendingLocationRequest{
			Address:        "addr",
			InternalUserID: "U7",
			SiteID:         "obra-A",
			Direction:      models.DirectionExit,
		}
		tr := CompleteClockRegistration(pending, coord, now)
		if len(tr.Commands) != 1 {
			t.Fatalf("expected a single record, got %d", len(tr.Commands))
		}
		record := tr.Commands[0].(CmdCreateClockRecord).Request
		if record.Direction != models.DirectionExit || record.AutomaticExit {
			t.Fatalf("record = %+v", record)
		}
	})
}

func TestClockCancellation(t *testing.T) {
	session := models.NewConversationSession("addr", models.StatePontoWaitingConfirmation)
	tr := HandleClockMessage(session, "cancelar")
	if tr.Session != nil || tr.Pending != nil {
		t.Fatal("cancellation must drop the session")
	}
	if !strings.Contains(tr.Replies[0], "cancelado") {
		t.Fatalf("expected cancellation reply, got %q", tr.Replies[0])
	}
}
