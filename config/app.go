package config

type App struct {
	Port        string `env:"APP_PORT" default:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	JWTSecret   string `env:"JWT_SECRET,required"`
	Env         string `env:"APP_ENV" default:"dev"`

	// Loan policy. Defaults match the library's standing rules:
	// 14-day loans, 7-day renewals granted only on the day before the
	// due date, fines of 1.00 per day late.
	LoanPeriodDays    int     `env:"LOAN_PERIOD_DAYS" default:"14"`
	RenewalDays       int     `env:"RENEWAL_DAYS" default:"7"`
	RenewalWindowDays int     `env:"RENEWAL_WINDOW_DAYS" default:"1"`
	FineRatePerDay    float64 `env:"FINE_RATE_PER_DAY" default:"1.00"`

	// Open Library ISBN metadata lookup on book creation.
	MetadataLookup bool `env:"OPENLIBRARY_ENABLED" default:"false"`
}
