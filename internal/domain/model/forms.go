package model

// Form describes one supported form. Forms is the single dispatch table every
// layer resolves through instead of switching on FormType.
type Form struct {
	Type FormType
	// Path is the HTTP route the form posts to.
	Path string
	// SourceLabel is the attribution label when the client sends none.
	SourceLabel string
	// AutoReply sends a confirmation to the submitter in addition to the admin copy.
	AutoReply bool
	// Accepted is the message returned to the caller on acceptance.
	Accepted string
	// New returns an empty payload to decode into.
	New func() Fields
}

// Forms is keyed by FormType.
var Forms = map[FormType]Form{
	FormContact: {
		Type:        FormContact,
		Path:        "/api/contact",
		SourceLabel: "Contact Form",
		AutoReply:   true,
		Accepted:    "Thank you for your message! We'll get back to you within 24 hours.",
		New:         func() Fields { return &ContactFields{} },
	},
	FormBetaSignup: {
		Type:        FormBetaSignup,
		Path:        "/api/beta-signup",
		SourceLabel: "Beta Signup Form",
		AutoReply:   true,
		Accepted:    "Welcome to the SkyBrain beta! Check your inbox for a confirmation email.",
		New:         func() Fields { return &BetaSignupFields{} },
	},
	FormDemoRequest: {
		Type:        FormDemoRequest,
		Path:        "/api/demo-request",
		SourceLabel: "website_demo_form",
		AutoReply:   true,
		Accepted:    "Demo request received! Our team will contact you shortly to schedule your demo.",
		New:         func() Fields { return &DemoRequestFields{} },
	},
	FormNewsletter: {
		Type:        FormNewsletter,
		Path:        "/api/newsletter-subscribe",
		SourceLabel: "website",
		AutoReply:   false,
		Accepted:    "Successfully subscribed to the SkyBrain newsletter!",
		New:         func() Fields { return &NewsletterFields{} },
	},
}

// OrderedForms lists the forms in a stable order for route registration and reports.
var OrderedForms = []FormType{FormContact, FormBetaSignup, FormDemoRequest, FormNewsletter}

// Lookup returns the Form for t.
func Lookup(t FormType) (Form, bool) {
	f, ok := Forms[t]
	return f, ok
}
