// Package model contains domain models passed between layers.
package model

// FormType identifies which form a submission came from. It selects the
// validator, the template pair and the sheet layout.
type FormType string

// Supported form types.
const (
	FormContact     FormType = "contact"
	FormBetaSignup  FormType = "beta-signup"
	FormDemoRequest FormType = "demo-request"
	FormNewsletter  FormType = "newsletter"
)

// Fields is the per-form payload. Exactly one concrete type exists per FormType.
type Fields interface {
	// Type is the FormType this variant belongs to.
	Type() FormType
	// Address is the email the submitter supplied.
	Address() string
	// DisplayName is used in subjects and greetings.
	DisplayName() string
	// ClientSource is the source the client sent, if the form carries one.
	ClientSource() string

	applyDefaults()
	clone() Fields
}

// ContactFields is the body of POST /api/contact.
type ContactFields struct {
	FirstName    string `json:"firstName" validate:"mintrim=2" msg:"First name must be at least 2 characters"`
	LastName     string `json:"lastName" validate:"mintrim=2" msg:"Last name must be at least 2 characters"`
	Email        string `json:"email" validate:"emailshape" msg:"Please provide a valid email address"`
	InterestArea string `json:"interestArea"`
	Message      string `json:"message" validate:"mintrim=10" msg:"Message must be at least 10 characters long"`
}

func (f *ContactFields) Type() FormType       { return FormContact }
func (f *ContactFields) Address() string      { return f.Email }
func (f *ContactFields) DisplayName() string  { return joinName(f.FirstName, f.LastName) }
func (f *ContactFields) ClientSource() string { return "" }
func (f *ContactFields) applyDefaults()       {}

func (f *ContactFields) clone() Fields {
	c := *f
	return &c
}

// BetaSignupFields is the body of POST /api/beta-signup.
type BetaSignupFields struct {
	FirstName     string   `json:"firstName" validate:"mintrim=2" msg:"First name must be at least 2 characters"`
	LastName      string   `json:"lastName" validate:"mintrim=2" msg:"Last name must be at least 2 characters"`
	Email         string   `json:"email" validate:"emailshape" msg:"Please provide a valid email address"`
	Company       string   `json:"company"`
	Country       string   `json:"country" validate:"mintrim=2" msg:"Country is required"`
	Interests     []string `json:"interests"`
	Timeline      string   `json:"timeline"`
	UseCase       string   `json:"useCase"`
	Notifications bool     `json:"notifications"`
}

func (f *BetaSignupFields) Type() FormType       { return FormBetaSignup }
func (f *BetaSignupFields) Address() string      { return f.Email }
func (f *BetaSignupFields) DisplayName() string  { return joinName(f.FirstName, f.LastName) }
func (f *BetaSignupFields) ClientSource() string { return "" }

func (f *BetaSignupFields) applyDefaults() {
	if f.Interests == nil {
		f.Interests = []string{}
	}
}

func (f *BetaSignupFields) clone() Fields {
	c := *f
	c.Interests = cloneStrings(f.Interests)
	return &c
}

// DemoRequestFields is the body of POST /api/demo-request.
type DemoRequestFields struct {
	Name     string `json:"name" validate:"mintrim=2" msg:"Name must be at least 2 characters"`
	Email    string `json:"email" validate:"emailshape" msg:"Please provide a valid email address"`
	Phone    string `json:"phone"`
	Company  string `json:"company"`
	Interest string `json:"interest" validate:"mintrim=1" msg:"Please select an area of interest"`
	Message  string `json:"message"`
	Source   string `json:"source"`
}

func (f *DemoRequestFields) Type() FormType       { return FormDemoRequest }
func (f *DemoRequestFields) Address() string      { return f.Email }
func (f *DemoRequestFields) DisplayName() string  { return joinName(f.Name) }
func (f *DemoRequestFields) ClientSource() string { return f.Source }

func (f *DemoRequestFields) applyDefaults() {
	if isBlank(f.Source) {
		f.Source = "website_demo_form"
	}
}

func (f *DemoRequestFields) clone() Fields {
	c := *f
	return &c
}

// NewsletterFields is the body of POST /api/newsletter-subscribe.
type NewsletterFields struct {
	Email       string   `json:"email" validate:"emailshape" msg:"Please provide a valid email address"`
	Preferences []string `json:"preferences"`
	Source      string   `json:"source"`
}

func (f *NewsletterFields) Type() FormType       { return FormNewsletter }
func (f *NewsletterFields) Address() string      { return f.Email }
func (f *NewsletterFields) DisplayName() string  { return f.Email }
func (f *NewsletterFields) ClientSource() string { return f.Source }

func (f *NewsletterFields) applyDefaults() {
	if len(f.Preferences) == 0 {
		f.Preferences = []string{"general"}
	}
	if isBlank(f.Source) {
		f.Source = "website"
	}
}

func (f *NewsletterFields) clone() Fields {
	c := *f
	c.Preferences = cloneStrings(f.Preferences)
	return &c
}
