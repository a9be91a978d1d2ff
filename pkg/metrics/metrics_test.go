package metrics

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then collectors are registered there", func() {
				So(manager, ShouldNotBeNil)
				manager.submissionsAccepted.WithLabelValues("contact").Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := map[string]bool{}
				for _, f := range families {
					names[f.GetName()] = true
				}
				So(names["formrelay_relay_submissions_accepted_total"], ShouldBeTrue)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("forms"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then names and labels follow the options", func() {
				manager.rateLimitEntries.Set(3)
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				var found bool
				for _, f := range families {
					if f.GetName() == "test_forms_rate_limit_entries" {
						found = true
						So(f.GetMetric()[0].GetGauge().GetValue(), ShouldEqual, 3)
						So(f.GetMetric()[0].GetLabel()[0].GetValue(), ShouldEqual, "test")
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When registering twice on the same registry", func() {
			registry := prometheus.NewRegistry()
			NewManager(WithPrometheusRegistry(registry))

			Convey("Then promauto panics on the duplicate", func() {
				So(func() { NewManager(WithPrometheusRegistry(registry)) }, ShouldPanic)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When a submission moves through the funnel", func() {
			before := testutil.ToFloat64(globalManager.submissionsAccepted.WithLabelValues("newsletter"))
			RecordSubmissionReceived("newsletter")
			RecordSubmissionAccepted("newsletter")

			Convey("Then the accepted counter moves", func() {
				So(testutil.ToFloat64(globalManager.submissionsAccepted.WithLabelValues("newsletter")), ShouldEqual, before+1)
			})
		})

		Convey("When a submission is rate limited", func() {
			denials := testutil.ToFloat64(globalManager.rateLimitDenials.WithLabelValues("contact"))
			RecordSubmissionRejected("contact", ReasonRateLimited)
			RecordSubmissionRejected("contact", ReasonInvalid)

			Convey("Then only the rate limited rejection counts as a denial", func() {
				So(testutil.ToFloat64(globalManager.rateLimitDenials.WithLabelValues("contact")), ShouldEqual, denials+1)
			})
		})

		Convey("When fan-outs start and settle", func() {
			start := testutil.ToFloat64(globalManager.fanoutsInFlight)
			IncFanoutsInFlight()
			IncFanoutsInFlight()
			DecFanoutsInFlight()
			So(testutil.ToFloat64(globalManager.fanoutsInFlight), ShouldEqual, start+1)
			DecFanoutsInFlight()
		})

		Convey("When recording the remaining collectors", func() {
			So(func() {
				RecordBackgroundTask("admin_email", OutcomeFulfilled, 0.2)
				RecordBackgroundTask("sheet", OutcomeRejected, 1.5)
				RecordRateLimitStoreError()
				UpdateRateLimitEntries(12)
				RecordHTTPRequest("/api/contact", "POST", "200")
				RecordHTTPRequestDuration("/api/contact", "POST", "200", 0.003)
				RecordErrorByComponent("mailer", "send")
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(10)
				RecordSystemGCPauseTime(0.4)
			}, ShouldNotPanic)
			So(GetRegistry(), ShouldNotBeNil)
		})
	})
}

func TestMetricsConcurrency(t *testing.T) {
	Convey("Given concurrent recorders", t, func() {
		before := testutil.ToFloat64(globalManager.backgroundTasks.WithLabelValues("user_email", OutcomeFulfilled))
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				RecordBackgroundTask("user_email", OutcomeFulfilled, 0.01)
			}()
		}
		wg.Wait()

		So(testutil.ToFloat64(globalManager.backgroundTasks.WithLabelValues("user_email", OutcomeFulfilled)), ShouldEqual, before+20)
	})
}
