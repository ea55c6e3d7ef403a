package server

type Config struct {
	Addr               string
	PublicBaseURL      string
	MongoURI           string
	MongoDB            string
	InstallsCollection string
	KeysCollection     string
	RecordsCollection  string

	// MasterSecret is the process-wide secret every key in the system
	// hangs off. The KEK and the token signing secret are derived from
	// it; it is injected here and never read from ambient globals.
	MasterSecret string
	// KDFSalt is the base64-encoded argon2id salt for KEK derivation.
	KDFSalt string

	TokenIssuer string
	AnalyzerURL string
	AuditPath   string
}

func (c *Config) setDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.PublicBaseURL == "" {
		c.PublicBaseURL = "http://localhost:8080"
	}
	if c.MongoDB == "" {
		c.MongoDB = "sleeplab"
	}
	if c.InstallsCollection == "" {
		c.InstallsCollection = "installs"
	}
	if c.KeysCollection == "" {
		c.KeysCollection = "agent_keys"
	}
	if c.RecordsCollection == "" {
		c.RecordsCollection = "records"
	}
	if c.TokenIssuer == "" {
		c.TokenIssuer = "sleeplab-backend"
	}
}
