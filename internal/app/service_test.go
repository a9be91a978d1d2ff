package service_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/skybrain/formrelay/internal/adapters/mailer"
	"github.com/skybrain/formrelay/internal/adapters/sheets"
	service "github.com/skybrain/formrelay/internal/app"
	"github.com/skybrain/formrelay/internal/domain/model"
	"github.com/skybrain/formrelay/internal/domain/ratelimit"
	"github.com/skybrain/formrelay/internal/templates"
	"github.com/skybrain/formrelay/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

// syncBuffer lets concurrent background tasks share one log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Count(substr string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Count(b.buf.String(), substr)
}

type sentMail struct {
	To       string
	Template string
}

type fakeMailer struct {
	mu    sync.Mutex
	sent  []sentMail
	delay time.Duration
	fail  map[string]error
	panic bool
}

func (m *fakeMailer) Send(ctx context.Context, to string, tmpl templates.Template, rec model.Record, _ ...mailer.SendOption) (mailer.Delivery, error) {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.panic {
		panic("smtp exploded")
	}
	if err := m.fail[tmpl.Name]; err != nil {
		return mailer.Delivery{}, err
	}
	m.mu.Lock()
	m.sent = append(m.sent, sentMail{To: to, Template: tmpl.Name})
	m.mu.Unlock()
	return mailer.Delivery{To: to, Template: tmpl.Name}, nil
}

func (m *fakeMailer) Sent() []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMail(nil), m.sent...)
}

type fakeSheets struct {
	mu         sync.Mutex
	logged     []model.Record
	delay      time.Duration
	err        error
	configured bool
}

func (f *fakeSheets) Log(_ context.Context, rec model.Record) (sheets.Result, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return sheets.Result{}, f.err
	}
	if !f.configured {
		return sheets.Result{Skipped: true}, nil
	}
	f.mu.Lock()
	f.logged = append(f.logged, rec)
	f.mu.Unlock()
	return sheets.Result{Success: true}, nil
}

func (f *fakeSheets) TestConnection(context.Context) (sheets.Result, error) {
	if !f.configured {
		return sheets.Result{}, sheets.ErrNotConfigured
	}
	return sheets.Result{Success: true, Message: "ok"}, f.err
}

func (f *fakeSheets) Stats(context.Context) sheets.Status {
	return sheets.Status{Configured: f.configured}
}

func (f *fakeSheets) Logged() []model.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Record(nil), f.logged...)
}

type fakeLimiter struct {
	decision ratelimit.Decision
	err      error
	keys     []string
}

func (l *fakeLimiter) Check(_ context.Context, key string) (ratelimit.Decision, error) {
	l.keys = append(l.keys, key)
	return l.decision, l.err
}

func (l *fakeLimiter) Len(context.Context) (int, error) { return len(l.keys), nil }

func (l *fakeLimiter) RunSweeper(ctx context.Context, _ time.Duration) error {
	<-ctx.Done()
	return nil
}

func validContact() *model.ContactFields {
	return &model.ContactFields{
		FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com",
		InterestArea: "agriculture", Message: "Please tell me more about crop scouting.",
	}
}

func newService(m *fakeMailer, sh *fakeSheets, settled chan service.Outcome, log logger.Logger) *service.Service {
	return service.New(
		service.WithMailer(m),
		service.WithSheets(sh),
		service.WithLimiter(&fakeLimiter{decision: ratelimit.Decision{Allowed: true, Attempts: 1}}),
		service.WithAdminEmail("ops@skybrain.in"),
		service.WithLogger(log),
		service.WithIDGenerator(func() string { return "sub-1" }),
		service.WithSettledHook(func(o service.Outcome) { settled <- o }),
	)
}

func waitSettled(ch chan service.Outcome) service.Outcome {
	select {
	case o := <-ch:
		return o
	case <-time.After(5 * time.Second):
		return service.Outcome{}
	}
}

func TestService_Submit(t *testing.T) {
	ctx := context.Background()

	Convey("Given a service over fake downstreams", t, func() {
		m := &fakeMailer{}
		sh := &fakeSheets{configured: true}
		settled := make(chan service.Outcome, 1)
		svc := newService(m, sh, settled, logger.Nop())
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop() }()

		Convey("When a valid contact form is submitted", func() {
			rec, err := svc.Submit(ctx, validContact())
			So(err, ShouldBeNil)
			out := waitSettled(settled)

			Convey("Then the record is server-stamped", func() {
				So(rec.ID, ShouldEqual, "sub-1")
				So(rec.Type, ShouldEqual, model.FormContact)
				So(rec.Source, ShouldEqual, "Contact Form")
				So(rec.Timestamp, ShouldNotBeEmpty)
			})

			Convey("And the admin copy, auto-reply and sheet log all run", func() {
				So(out.Tasks, ShouldHaveLength, 3)
				So(out.Failed(), ShouldEqual, 0)
				So(m.Sent(), ShouldContain, sentMail{To: "ops@skybrain.in", Template: "contact_admin"})
				So(m.Sent(), ShouldContain, sentMail{To: "ada@example.com", Template: "contact_user"})
				So(sh.Logged(), ShouldHaveLength, 1)
			})
		})

		Convey("When a newsletter subscription is submitted", func() {
			_, err := svc.Submit(ctx, &model.NewsletterFields{Email: "x@y.com"})
			So(err, ShouldBeNil)
			out := waitSettled(settled)

			Convey("Then only the admin copy is mailed", func() {
				So(out.Tasks, ShouldHaveLength, 2)
				So(m.Sent(), ShouldResemble, []sentMail{{To: "ops@skybrain.in", Template: "newsletter_admin"}})
			})

			Convey("And the logged record carries the defaults", func() {
				logged := sh.Logged()
				So(logged, ShouldHaveLength, 1)
				nf := logged[0].Fields.(*model.NewsletterFields)
				So(nf.Preferences, ShouldResemble, []string{"general"})
				So(nf.Source, ShouldEqual, "website")
			})
		})

		Convey("When required fields are missing", func() {
			_, err := svc.Submit(ctx, &model.ContactFields{Email: "nope"})

			Convey("Then every violated rule is reported and nothing is sent", func() {
				var inv *service.InvalidError
				So(errors.As(err, &inv), ShouldBeTrue)
				So(errors.Is(err, service.ErrInvalid), ShouldBeTrue)
				So(inv.Errors, ShouldHaveLength, 4)
				So(m.Sent(), ShouldBeEmpty)
			})
		})
	})
}

func TestService_ResponsePrecedesBackgroundWork(t *testing.T) {
	ctx := context.Background()

	Convey("Given downstreams that take a long time", t, func() {
		m := &fakeMailer{delay: 500 * time.Millisecond}
		sh := &fakeSheets{configured: true, delay: 500 * time.Millisecond}
		settled := make(chan service.Outcome, 1)
		svc := newService(m, sh, settled, logger.Nop())
		defer func() { _ = svc.Stop() }()

		Convey("When a submission is accepted", func() {
			start := time.Now()
			_, err := svc.Submit(ctx, validContact())
			elapsed := time.Since(start)

			Convey("Then Submit returns before any delivery finishes", func() {
				So(err, ShouldBeNil)
				So(elapsed, ShouldBeLessThan, 100*time.Millisecond)
				So(m.Sent(), ShouldBeEmpty)
			})

			Convey("And the deliveries run concurrently", func() {
				out := waitSettled(settled)
				So(time.Since(start), ShouldBeLessThan, 1200*time.Millisecond)
				So(out.Failed(), ShouldEqual, 0)
			})
		})

		Convey("When the request context is cancelled right after acceptance", func() {
			reqCtx, cancel := context.WithCancel(ctx)
			_, err := svc.Submit(reqCtx, validContact())
			cancel()
			So(err, ShouldBeNil)

			Convey("Then the deliveries still complete", func() {
				out := waitSettled(settled)
				So(out.Failed(), ShouldEqual, 0)
				So(m.Sent(), ShouldHaveLength, 2)
			})
		})
	})
}

func TestService_FailureIsolation(t *testing.T) {
	ctx := context.Background()

	Convey("Given a sheet logger that fails", t, func() {
		logs := &syncBuffer{}
		m := &fakeMailer{}
		sh := &fakeSheets{configured: true, err: errors.New("webhook returned 500")}
		settled := make(chan service.Outcome, 1)
		svc := newService(m, sh, settled, logger.New(logs))
		defer func() { _ = svc.Stop() }()

		Convey("When a submission is accepted", func() {
			_, err := svc.Submit(ctx, validContact())
			So(err, ShouldBeNil)
			out := waitSettled(settled)

			Convey("Then both emails still go out", func() {
				So(m.Sent(), ShouldHaveLength, 2)
				So(out.Failed(), ShouldEqual, 1)
			})

			Convey("And the failure is logged exactly once with its context", func() {
				So(logs.Count(`"background delivery failed"`), ShouldEqual, 1)
				So(logs.Count(`"task":"sheet_log"`), ShouldEqual, 1)
				So(logs.Count(`"form_type":"contact"`), ShouldBeGreaterThan, 0)
			})
		})
	})

	Convey("Given a mailer whose admin template fails", t, func() {
		logs := &syncBuffer{}
		m := &fakeMailer{fail: map[string]error{"contact_admin": errors.New("535 auth failed")}}
		sh := &fakeSheets{configured: true}
		settled := make(chan service.Outcome, 1)
		svc := newService(m, sh, settled, logger.New(logs))
		defer func() { _ = svc.Stop() }()

		Convey("When a submission is accepted", func() {
			_, err := svc.Submit(ctx, validContact())
			So(err, ShouldBeNil)
			out := waitSettled(settled)

			Convey("Then the auto-reply and the sheet log are unaffected", func() {
				So(out.Failed(), ShouldEqual, 1)
				So(m.Sent(), ShouldResemble, []sentMail{{To: "ada@example.com", Template: "contact_user"}})
				So(sh.Logged(), ShouldHaveLength, 1)
			})

			Convey("And the log names the recipient and template", func() {
				So(logs.Count(`"background delivery failed"`), ShouldEqual, 1)
				So(logs.Count(`"recipient":"ops@skybrain.in"`), ShouldEqual, 1)
				So(logs.Count(`"template":"contact_admin"`), ShouldEqual, 1)
			})
		})
	})

	Convey("Given a mailer that panics", t, func() {
		m := &fakeMailer{panic: true}
		sh := &fakeSheets{configured: true}
		settled := make(chan service.Outcome, 1)
		svc := newService(m, sh, settled, logger.Nop())
		defer func() { _ = svc.Stop() }()

		Convey("When a submission is accepted", func() {
			_, err := svc.Submit(ctx, validContact())
			So(err, ShouldBeNil)
			out := waitSettled(settled)

			Convey("Then the panics become rejections and the sheet log still runs", func() {
				So(out.Failed(), ShouldEqual, 2)
				for _, task := range out.Tasks {
					if task.Task != service.TaskSheetLog {
						So(errors.Is(task.Err, service.ErrTaskPanic), ShouldBeTrue)
					}
				}
				So(sh.Logged(), ShouldHaveLength, 1)
			})
		})
	})

	Convey("Given an unconfigured sheet logger", t, func() {
		m := &fakeMailer{}
		sh := &fakeSheets{configured: false}
		settled := make(chan service.Outcome, 1)
		svc := newService(m, sh, settled, logger.Nop())
		defer func() { _ = svc.Stop() }()

		Convey("When a submission is accepted", func() {
			_, err := svc.Submit(ctx, validContact())
			So(err, ShouldBeNil)
			out := waitSettled(settled)

			Convey("Then the sheet task is skipped, not failed", func() {
				So(out.Failed(), ShouldEqual, 0)
				for _, task := range out.Tasks {
					if task.Task == service.TaskSheetLog {
						So(task.Skipped, ShouldBeTrue)
					}
				}
				So(m.Sent(), ShouldHaveLength, 2)
			})
		})
	})
}

func TestService_Check(t *testing.T) {
	ctx := context.Background()

	Convey("Given a service with a limiter", t, func() {
		lim := &fakeLimiter{decision: ratelimit.Decision{Allowed: true, Attempts: 1}}
		svc := service.New(service.WithLimiter(lim))

		Convey("When checking a client", func() {
			d := svc.Check(ctx, model.FormDemoRequest, "203.0.113.9")

			Convey("Then each form keeps its own key", func() {
				So(d.Allowed, ShouldBeTrue)
				So(lim.keys, ShouldResemble, []string{"demo-request|203.0.113.9"})
			})
		})

		Convey("When the client address is unknown", func() {
			svc.Check(ctx, model.FormContact, "")

			Convey("Then the shared unknown bucket is used", func() {
				So(lim.keys, ShouldResemble, []string{"contact|unknown"})
			})
		})

		Convey("When the limiter store fails", func() {
			lim.err = ratelimit.ErrStore
			lim.decision = ratelimit.Decision{Allowed: true}
			d := svc.Check(ctx, model.FormContact, "198.51.100.1")

			Convey("Then the request is let through", func() {
				So(d.Allowed, ShouldBeTrue)
			})
		})
	})
}

func TestService_Lifecycle(t *testing.T) {
	ctx := context.Background()

	Convey("Given a started service", t, func() {
		sh := &fakeSheets{configured: true}
		svc := service.New(
			service.WithMailer(&fakeMailer{}),
			service.WithSheets(sh),
			service.WithLimiter(&fakeLimiter{}),
			service.WithAdminEmail("ops@skybrain.in"),
		)
		So(svc.Start(ctx), ShouldBeNil)

		Convey("Then stats reflect the configuration", func() {
			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, true)
			So(stats["sheetsConfigured"], ShouldEqual, true)
			So(stats["adminConfigured"], ShouldEqual, true)
		})

		Convey("When it is stopped", func() {
			So(svc.Stop(), ShouldBeNil)

			Convey("Then new submissions are refused", func() {
				_, err := svc.Submit(ctx, validContact())
				So(errors.Is(err, service.ErrStopped), ShouldBeTrue)
				So(svc.GetStats()["started"], ShouldEqual, false)
			})

			Convey("And stopping twice is harmless", func() {
				So(svc.Stop(), ShouldBeNil)
			})
		})
	})

	Convey("Given a service with a stuck delivery", t, func() {
		svc := service.New(
			service.WithMailer(&fakeMailer{delay: time.Second}),
			service.WithAdminEmail("ops@skybrain.in"),
			service.WithShutdownTimeout(50*time.Millisecond),
		)
		_, err := svc.Submit(ctx, validContact())
		So(err, ShouldBeNil)

		Convey("When it is stopped", func() {
			err := svc.Stop()

			Convey("Then Stop gives up after the shutdown timeout", func() {
				So(errors.Is(err, service.ErrShutdownTimeout), ShouldBeTrue)
			})
		})
	})

	Convey("Given the sheets helpers", t, func() {
		Convey("When no sheet logger is wired", func() {
			svc := service.New()
			_, err := svc.TestSheets(ctx)
			So(errors.Is(err, sheets.ErrNotConfigured), ShouldBeTrue)
			So(svc.SheetsStats(ctx).Configured, ShouldBeFalse)
		})

		Convey("When one is wired", func() {
			svc := service.New(service.WithSheets(&fakeSheets{configured: true}))
			res, err := svc.TestSheets(ctx)
			So(err, ShouldBeNil)
			So(res.Success, ShouldBeTrue)
			So(svc.SheetsStats(ctx).Configured, ShouldBeTrue)
		})
	})
}
