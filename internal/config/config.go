package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Store backends.
const (
	BackendRedis     = "redis"
	BackendFirestore = "firestore"
	BackendMemory    = "memory"
)

type Config struct {
	LogLevel       string     `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	HTTPPort       string     `yaml:"http-port" env:"HTTP_PORT" env-default:"9090"`
	SocketPort     string     `yaml:"socket-port" env:"SOCKET_PORT" env-default:"9091"`
	AllowedOrigins []string   `yaml:"allowed-origins" env:"ALLOWED_ORIGINS" env-default:"*"`
	Store          Store      `yaml:"store"`
	Redis          Redis      `yaml:"redis"`
	Firestore      Firestore  `yaml:"firestore"`
	Classifier     Classifier `yaml:"classifier"`
	Narrator       Narrator   `yaml:"narrator"`
	Session        Session    `yaml:"session"`
}

type Store struct {
	Backend string        `yaml:"backend" env:"STORE_BACKEND" env-default:"redis"`
	RoomTTL time.Duration `yaml:"room-ttl" env:"STORE_ROOM_TTL" env-default:"2h"`
}

type Redis struct {
	Host      string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port      string `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password  string `yaml:"password" env:"REDIS_PASSWORD"`
	DB        int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	KeyPrefix string `yaml:"key-prefix" env:"REDIS_KEY_PREFIX" env-default:"rps"`
}

type Firestore struct {
	ProjectID  string `yaml:"project-id" env:"FIRESTORE_PROJECT_ID"`
	Collection string `yaml:"collection" env:"FIRESTORE_COLLECTION" env-default:"games"`
}

type Classifier struct {
	URL       string        `yaml:"url" env:"CLASSIFIER_URL" env-default:"http://localhost:8500"`
	Threshold float64       `yaml:"threshold" env:"CLASSIFIER_THRESHOLD" env-default:"0.5"`
	Timeout   time.Duration `yaml:"timeout" env:"CLASSIFIER_TIMEOUT" env-default:"2s"`
	// SecondURL is the classifier of a second local camera. Player mode is off without it.
	SecondURL string `yaml:"second-url" env:"CLASSIFIER_SECOND_URL"`
}

type Narrator struct {
	URL       string        `yaml:"url" env:"NARRATOR_URL" env-default:"https://api.elevenlabs.io"`
	APIKey    string        `yaml:"api-key" env:"NARRATOR_API_KEY"`
	VoiceID   string        `yaml:"voice-id" env:"NARRATOR_VOICE_ID"`
	Timeout   time.Duration `yaml:"timeout" env:"NARRATOR_TIMEOUT" env-default:"15s"`
	QueueSize int           `yaml:"queue-size" env:"NARRATOR_QUEUE_SIZE" env-default:"16"`
}

// Session holds the round protocol timings. Both clients of a room must agree on them.
type Session struct {
	CountdownTick     time.Duration `yaml:"countdown-tick" env-default:"1s"`
	GoHold            time.Duration `yaml:"go-hold" env-default:"500ms"`
	LocalSettle       time.Duration `yaml:"local-settle" env-default:"1s"`
	HostSettle        time.Duration `yaml:"host-settle" env-default:"1s"`
	GuestSettle       time.Duration `yaml:"guest-settle" env-default:"500ms"`
	CaptureAttempts   int           `yaml:"capture-attempts" env-default:"5"`
	CaptureInterval   time.Duration `yaml:"capture-interval" env-default:"500ms"`
	ReconcileInitial  time.Duration `yaml:"reconcile-initial" env-default:"500ms"`
	ReconcileMax      time.Duration `yaml:"reconcile-max" env-default:"2s"`
	ReconcileDeadline time.Duration `yaml:"reconcile-deadline" env-default:"10s"`
	ClearDelay        time.Duration `yaml:"clear-delay" env-default:"3s"`
	RoomInactivity    time.Duration `yaml:"room-inactivity" env-default:"30m"`
	OperationTimeout  time.Duration `yaml:"operation-timeout" env-default:"10s"`
	RoomCodeRetries   int           `yaml:"room-code-retries" env-default:"5"`
}

// MustLoad - load all configurations in config.yml file.
func MustLoad(path string) *Config {
	config := &Config{}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		panic(fmt.Errorf("unable to load config file: %w", err))
	}

	return config
}

func (that *Redis) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", that.Host, that.Port)
}
