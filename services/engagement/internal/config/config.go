package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Vote ledger backends selectable through VOTE_BACKEND.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

type Config struct {
	GRPCAddr    string
	DatabaseURL string
	RedisURL    string
	NATSURL     string
	VoteBackend string

	JWTSecret []byte
	JWTIssuer string

	// Users directory: HTTP profile service when UsersBaseURL is set.
	UsersBaseURL        string
	UsersCache          string
	UsersCacheTTL       time.Duration
	UsersMaxRetries     int
	UsersRetryBaseDelay time.Duration
	UsersTimeout        time.Duration
	// Circuit-breaker settings for the users client.
	CBMaxRequests      uint32
	CBInterval         time.Duration
	CBTimeout          time.Duration
	CBFailureThreshold uint32

	CommentMaxLength int

	CommandsEnabled     bool
	IdempotencyTTL      time.Duration
	WorkerBatchSize     int
	WorkerBatchInterval time.Duration

	// SeedPosts populates the in-memory post directory ("id:author,...").
	SeedPosts []SeedPost
}

type SeedPost struct {
	ID       string
	AuthorID string
}

func Load() (Config, error) {
	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if secret == "" {
		return Config{}, errors.New("JWT_SECRET is required")
	}
	grpcAddr := strings.TrimSpace(os.Getenv("GRPC_ADDR"))
	if grpcAddr == "" {
		grpcAddr = ":9096"
	}
	dsn := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	redisURL := strings.TrimSpace(os.Getenv("REDIS_URL"))

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("VOTE_BACKEND")))
	if backend == "" {
		switch {
		case dsn != "":
			backend = BackendPostgres
		default:
			backend = BackendMemory
		}
	}
	switch backend {
	case BackendPostgres:
		if dsn == "" {
			return Config{}, errors.New("VOTE_BACKEND=postgres requires DATABASE_URL")
		}
	case BackendRedis:
		if redisURL == "" {
			return Config{}, errors.New("VOTE_BACKEND=redis requires REDIS_URL")
		}
	case BackendMemory:
	default:
		return Config{}, fmt.Errorf("unknown VOTE_BACKEND %q", backend)
	}

	usersCache := strings.ToLower(strings.TrimSpace(os.Getenv("USERS_CACHE")))
	if usersCache == "" {
		usersCache = "memory"
	}
	if usersCache != "memory" && usersCache != "redis" && usersCache != "none" {
		return Config{}, fmt.Errorf("unknown USERS_CACHE %q", usersCache)
	}

	seeds, err := parseSeedPosts(os.Getenv("SEED_POSTS"))
	if err != nil {
		return Config{}, err
	}

	return Config{
		GRPCAddr:            grpcAddr,
		DatabaseURL:         dsn,
		RedisURL:            redisURL,
		NATSURL:             strings.TrimSpace(os.Getenv("NATS_URL")),
		VoteBackend:         backend,
		JWTSecret:           []byte(secret),
		JWTIssuer:           strings.TrimSpace(os.Getenv("JWT_ISSUER")),
		UsersBaseURL:        strings.TrimRight(strings.TrimSpace(os.Getenv("USERS_BASE_URL")), "/"),
		UsersCache:          usersCache,
		UsersCacheTTL:       envDuration("USERS_CACHE_TTL", 5*time.Minute),
		UsersMaxRetries:     envInt("USERS_MAX_RETRIES", 2),
		UsersRetryBaseDelay: envDuration("USERS_RETRY_BASE_DELAY", 200*time.Millisecond),
		UsersTimeout:        envDuration("USERS_TIMEOUT", 3*time.Second),
		CBMaxRequests:       uint32(envInt("CB_MAX_REQUESTS", 5)),
		CBInterval:          envDuration("CB_INTERVAL", 60*time.Second),
		CBTimeout:           envDuration("CB_TIMEOUT", 30*time.Second),
		CBFailureThreshold:  uint32(envInt("CB_FAILURE_THRESHOLD", 5)),
		CommentMaxLength:    envInt("COMMENT_MAX_LENGTH", 10000),
		CommandsEnabled:     envBool("COMMANDS_ENABLED", false),
		IdempotencyTTL:      envDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		WorkerBatchSize:     envInt("WORKER_BATCH_SIZE", 100),
		WorkerBatchInterval: time.Duration(envInt("WORKER_BATCH_INTERVAL_MS", 2000)) * time.Millisecond,
		SeedPosts:           seeds,
	}, nil
}

func parseSeedPosts(raw string) ([]SeedPost, error) {
	var out []SeedPost
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		id, author, ok := strings.Cut(item, ":")
		id, author = strings.TrimSpace(id), strings.TrimSpace(author)
		if !ok || id == "" || author == "" {
			return nil, fmt.Errorf("SEED_POSTS: expected id:author, got %q", item)
		}
		out = append(out, SeedPost{ID: id, AuthorID: author})
	}
	return out, nil
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
