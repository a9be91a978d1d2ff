package templates

import (
	"errors"
	"testing"
	"time"

	"github.com/skybrain/formrelay/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func record(t *testing.T, f model.Fields) model.Record {
	t.Helper()
	rec, err := model.NewRecord("sub-7", f, time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("new record: %v", err)
	}
	return rec
}

func TestRegistry(t *testing.T) {
	Convey("Given the embedded templates", t, func() {
		Convey("Then every form has an admin template and auto-reply forms have a user one", func() {
			for _, ft := range model.OrderedForms {
				_, err := For(ft, Admin)
				So(err, ShouldBeNil)

				_, err = For(ft, User)
				if model.Forms[ft].AutoReply {
					So(err, ShouldBeNil)
				} else {
					So(errors.Is(err, ErrNoTemplate), ShouldBeTrue)
				}
			}
		})
	})
}

func TestRender(t *testing.T) {
	Convey("Given a contact record", t, func() {
		rec := record(t, &model.ContactFields{
			FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com",
			Message: "Please call me <b>soon</b>",
		})

		Convey("When rendering the admin notification", func() {
			out, err := MustFor(model.FormContact, Admin).Render(rec)
			So(err, ShouldBeNil)

			Convey("Then the subject names the sender and the body escapes input", func() {
				So(out.Subject, ShouldEqual, "New contact form submission from Ada Lovelace")
				So(out.HTML, ShouldContainSubstring, "ada@example.com")
				So(out.HTML, ShouldContainSubstring, "&lt;b&gt;soon&lt;/b&gt;")
				So(out.HTML, ShouldContainSubstring, "sub-7")
				So(out.HTML, ShouldContainSubstring, "Contact Form")
			})
		})

		Convey("When rendering twice", func() {
			tmpl := MustFor(model.FormContact, User)
			a, errA := tmpl.Render(rec)
			b, errB := tmpl.Render(rec)
			So(tmpl.Name, ShouldEqual, "contact_user")
			So(errA, ShouldBeNil)
			So(errB, ShouldBeNil)
			So(a, ShouldResemble, b)
			So(a.Subject, ShouldEqual, "Thanks for contacting SkyBrain, Ada")
		})
	})

	Convey("Given a name with an apostrophe and a line break", t, func() {
		rec := record(t, &model.DemoRequestFields{
			Name: "Miles O'Brien\r\nBcc: x@y.z", Email: "m@b.co", Interest: "mapping",
		})

		out, err := MustFor(model.FormDemoRequest, Admin).Render(rec)
		So(err, ShouldBeNil)

		Convey("Then the subject stays plain text on one line", func() {
			So(out.Subject, ShouldEqual, "Demo request from Miles O'Brien Bcc: x@y.z")
			So(out.Subject, ShouldNotContainSubstring, "\n")
		})
	})

	Convey("Given beta and newsletter records", t, func() {
		beta := record(t, &model.BetaSignupFields{
			FirstName: "Grace", LastName: "Hopper", Email: "g@h.io", Country: "US",
			Interests: []string{"mapping", "inspection"}, Notifications: true,
		})
		news := record(t, &model.NewsletterFields{Email: "x@y.com"})

		b, err := MustFor(model.FormBetaSignup, Admin).Render(beta)
		So(err, ShouldBeNil)
		So(b.Subject, ShouldEqual, "New beta signup: Grace Hopper (US)")
		So(b.HTML, ShouldContainSubstring, "mapping, inspection")
		So(b.HTML, ShouldContainSubstring, "Yes")

		n, err := MustFor(model.FormNewsletter, Admin).Render(news)
		So(err, ShouldBeNil)
		So(n.Subject, ShouldEqual, "New newsletter subscriber: x@y.com")
		So(n.HTML, ShouldContainSubstring, "general")
	})

	Convey("Given a record of the wrong shape for the template", t, func() {
		rec := record(t, &model.NewsletterFields{Email: "x@y.com"})
		_, err := MustFor(model.FormContact, Admin).Render(rec)
		So(errors.Is(err, ErrExecute), ShouldBeTrue)
	})
}
