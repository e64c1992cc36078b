package jobs

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/obralink/obrabot-backend/internal/models"
	"github.com/obralink/obrabot-backend/internal/services"
	"github.com/obralink/obrabot-backend/internal/storage"
)

// DispatchJob evaluates every enabled broadcast schedule once a minute and
// pushes the due ones to their frozen recipient lists.
type DispatchJob struct {
	store     storage.Store
	transport services.Transport
	logs      *services.DispatchLog
	location  *time.Location

	tickInterval time.Duration
	sendDelay    time.Duration
	now          func() time.Time

	mu        sync.Mutex
	isRunning bool
	stop      chan struct{}
}

// NewDispatchJob creates the scheduler. Schedule times are interpreted in
// the given civil timezone.
func NewDispatchJob(store storage.Store, transport services.Transport, logs *services.DispatchLog, location *time.Location) *DispatchJob {
	return &DispatchJob{
		store:        store,
		transport:    transport,
		logs:         logs,
		location:     location,
		tickInterval: 60 * time.Second,
		sendDelay:    3 * time.Second,
		now:          time.Now,
	}
}

// Start begins the minute tick loop.
func (d *DispatchJob) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isRunning {
		log.Println("Dispatch job already running")
		return
	}
	d.isRunning = true
	d.stop = make(chan struct{})

	go d.run(d.stop)
	log.Println("✅ Broadcast dispatch job started")
}

// Stop halts the tick loop.
func (d *DispatchJob) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.isRunning {
		return
	}
	d.isRunning = false
	close(d.stop)
	log.Println("⏹️  Broadcast dispatch job stopped")
}

// Running reports whether the tick loop is active.
func (d *DispatchJob) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.isRunning
}

func (d *DispatchJob) run(stop chan struct{}) {
	ticker := time.NewTicker(d.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			d.Tick()
		}
	}
}

// Tick evaluates every enabled schedule against the current civil time.
// Exported so tests can drive the scheduler without the ticker.
func (d *DispatchJob) Tick() {
	schedules, err := d.store.GetEnabledSchedules()
	if err != nil {
		log.Printf("Error loading schedules for dispatch tick: %v", err)
		return
	}

	now := d.now().In(d.location)
	for _, schedule := range schedules {
		if schedule.TimeOfDay != now.Format("15:04") {
			continue
		}
		if !ShouldExecuteToday(schedule, now) {
			continue
		}
		d.Execute(schedule, now)
	}
}

// ShouldExecuteToday applies the idempotency guard and the frequency rule
// for a schedule on the given civil date.
func ShouldExecuteToday(schedule *models.BroadcastSchedule, now time.Time) bool {
	today := now.Format("2006-01-02")
	if schedule.LastSentDate == today {
		return false
	}
	if schedule.StartDate != nil {
		start := schedule.StartDate.In(now.Location())
		startDay := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, now.Location())
		nowDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		if nowDay.Before(startDay) {
			return false
		}
	}

	switch schedule.Frequency {
	case models.FrequencyDaily, models.FrequencyTest:
		return true
	case models.FrequencyWeekly, models.FrequencyCustomDays:
		weekday := int(now.Weekday())
		for _, day := range schedule.WeekdaySet() {
			if day == weekday {
				return true
			}
		}
		return false
	case models.FrequencyMonthly:
		return now.Day() == 1
	}
	return false
}

// Execute sends one schedule to its frozen recipient list, sequentially,
// with a fixed delay between sends to respect outbound rate limits.
// Recipients the channel cannot resolve are skipped and logged; a failed
// send does not abort the remaining recipients.
func (d *DispatchJob) Execute(schedule *models.BroadcastSchedule, now time.Time) {
	message := models.PriorityGlyph(schedule.Priority) + schedule.Message
	recipients := schedule.RecipientList()

	successCount := 0
	errorCount := 0

	for i, recipient := range recipients {
		if i > 0 && d.sendDelay > 0 {
			time.Sleep(d.sendDelay)
		}

		registered, err := d.transport.IsRegisteredAddress(recipient.Phone)
		if err != nil || !registered {
			errorCount++
			d.logs.Append(schedule.ScheduleID, models.LogSeverityWarning,
				fmt.Sprintf("Recipient %s (%s) is not resolvable on the channel", recipient.Name, recipient.Phone),
				nil)
			log.Printf("⚠️  Skipping unresolvable recipient %s for schedule %s", recipient.Phone, schedule.ScheduleID)
			continue
		}

		if _, err := d.transport.Send(recipient.Phone, message); err != nil {
			errorCount++
			d.logs.Append(schedule.ScheduleID, models.LogSeverityError,
				fmt.Sprintf("Send to %s failed: %v", recipient.Phone, err), nil)
			continue
		}
		successCount++
	}

	schedule.LastSentDate = now.Format("2006-01-02")
	schedule.TotalSent += successCount
	if err := d.store.UpdateSchedule(schedule); err != nil {
		log.Printf("Error persisting dispatch result for schedule %s: %v", schedule.ScheduleID, err)
	}

	d.logs.Append(schedule.ScheduleID, models.LogSeverityInfo,
		fmt.Sprintf("Broadcast executed: %d sent, %d failed", successCount, errorCount),
		map[string]string{
			"success_count": fmt.Sprintf("%d", successCount),
			"error_count":   fmt.Sprintf("%d", errorCount),
		})
	log.Printf("📣 Schedule %s dispatched: %d sent, %d failed", schedule.ScheduleID, successCount, errorCount)
}
