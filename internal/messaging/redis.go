package messaging

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"cockpit-service/internal/automation"
	"cockpit-service/internal/logger"
	"cockpit-service/internal/types"
)

// Host keys and channels
const (
	TelemetryKey     = "sim:telemetry"
	CommandsKey      = "sim:commands"
	CommandQueueKey  = "sim:command"
	LifecycleChannel = "sim:lifecycle"
	SpeechChannel    = "cockpit:speech"
	CockpitKey       = "cockpit"
)

// TriggerLists are the lists external callers LPUSH commands onto. The
// list suffix and the value form the command, e.g. "enable" on
// cockpit:throttle-manager is throttle-manager:enable.
var TriggerLists = []string{
	"cockpit:throttle-manager",
	"cockpit:touchdown-motion",
	"cockpit:parking-brake",
}

type Callbacks struct {
	LifecycleCallback func(types.LifecycleEvent) error
	CommandCallback   func(types.Command) error
}

// RedisClient bridges the automation machines to the host: it caches
// telemetry, forwards actuator commands and reports, and feeds lifecycle
// events and trigger commands back through the callbacks.
type RedisClient struct {
	*TelemetryCache

	client    *redis.Client
	callbacks Callbacks
	logger    *logger.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	cmdMu    sync.RWMutex
	commands map[string]bool
}

func NewRedisClient(host string, port int, l *logger.Logger, callbacks Callbacks) *RedisClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisClient{
		TelemetryCache: NewTelemetryCache(),
		client: redis.NewClient(&redis.Options{
			Addr: fmt.Sprintf("%s:%d", host, port),
			DB:   0,
		}),
		callbacks: callbacks,
		logger:    l,
		ctx:       ctx,
		cancel:    cancel,
		commands:  make(map[string]bool),
	}
}

// SetCallbacks replaces the callbacks. Call before StartListening.
func (r *RedisClient) SetCallbacks(callbacks Callbacks) {
	r.callbacks = callbacks
}

func (r *RedisClient) Connect() error {
	r.logger.Infof("Attempting to connect to Redis at %s", r.client.Options().Addr)

	if err := r.client.Ping(r.ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	r.logger.Infof("Successfully connected to Redis")

	if err := r.RefreshTelemetry(); err != nil {
		r.logger.Warnf("Failed to load initial telemetry: %v", err)
	}
	if err := r.RefreshCommands(); err != nil {
		r.logger.Warnf("Failed to load host commands: %v", err)
	}
	return nil
}

// StartListening starts the pub/sub listener and the trigger list listeners.
func (r *RedisClient) StartListening() error {
	r.logger.Infof("Starting Redis listeners")

	pubsub := r.client.Subscribe(r.ctx, TelemetryKey, CommandsKey, LifecycleChannel)
	r.logger.Infof("Subscribed to Redis channels: %s, %s, %s", TelemetryKey, CommandsKey, LifecycleChannel)

	r.wg.Add(1)
	go r.redisListener(pubsub)

	for _, key := range TriggerLists {
		r.wg.Add(1)
		go r.listCommandListener(key, r.handleTrigger(key))
	}
	return nil
}

// Close stops the listeners and closes the connection.
func (r *RedisClient) Close() error {
	r.cancel()
	r.wg.Wait()
	return r.client.Close()
}

// RefreshTelemetry reloads the whole telemetry hash into the cache.
func (r *RedisClient) RefreshTelemetry() error {
	values, err := r.client.HGetAll(r.ctx, TelemetryKey).Result()
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", TelemetryKey, err)
	}
	r.Replace(values)
	return nil
}

// RefreshCommands reloads the set of commands the host offers.
func (r *RedisClient) RefreshCommands() error {
	members, err := r.client.SMembers(r.ctx, CommandsKey).Result()
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", CommandsKey, err)
	}
	commands := make(map[string]bool, len(members))
	for _, m := range members {
		commands[m] = true
	}
	r.cmdMu.Lock()
	r.commands = commands
	r.cmdMu.Unlock()
	return nil
}

func (r *RedisClient) HasCommand(id string) bool {
	r.cmdMu.RLock()
	defer r.cmdMu.RUnlock()
	return r.commands[id]
}

func (r *RedisClient) Begin(id string) error {
	return r.pushCommand("begin", id)
}

func (r *RedisClient) End(id string) error {
	return r.pushCommand("end", id)
}

func (r *RedisClient) pushCommand(action, id string) error {
	r.logger.Debugf("Sending %s %s", action, id)
	if err := r.client.LPush(r.ctx, CommandQueueKey, action+" "+id).Err(); err != nil {
		return fmt.Errorf("failed to %s %s: %w", action, id, err)
	}
	return nil
}

// Report speaks a message in the cockpit and keeps it as the last report.
func (r *RedisClient) Report(msg string) error {
	r.logger.Infof("Report: %s", msg)
	return r.publishHashSet(CockpitKey, "report", msg, SpeechChannel, msg)
}

// PublishMachineState stores and announces a machine state.
func (r *RedisClient) PublishMachineState(machine string, state string) error {
	field := machine + ":state"
	return r.publishHashSet(CockpitKey, field, state, CockpitKey, field)
}

// PublishLanding stores the latest touchdown.
func (r *RedisClient) PublishLanding(l automation.Landing) error {
	pipe := r.client.Pipeline()
	pipe.HSet(r.ctx, CockpitKey,
		"landing:descent-rate", strconv.FormatFloat(l.DescentRate, 'f', 3, 64),
		"landing:amplitude", strconv.FormatFloat(l.Amplitude, 'f', 4, 64),
		"landing:timestamp", l.Time.Format(time.RFC3339Nano),
	)
	pipe.Publish(r.ctx, CockpitKey, "landing")
	if _, err := pipe.Exec(r.ctx); err != nil {
		return fmt.Errorf("failed to publish landing: %w", err)
	}
	return nil
}

// PublishSession stores the current vehicle session.
func (r *RedisClient) PublishSession(id string, state string) error {
	pipe := r.client.Pipeline()
	pipe.HSet(r.ctx, CockpitKey, "session:id", id, "session:state", state)
	pipe.Publish(r.ctx, CockpitKey, "session")
	if _, err := pipe.Exec(r.ctx); err != nil {
		return fmt.Errorf("failed to publish session: %w", err)
	}
	return nil
}

func (r *RedisClient) publishHashSet(hash, field string, value interface{}, channel, payload string) error {
	pipe := r.client.Pipeline()
	pipe.HSet(r.ctx, hash, field, value)
	pipe.Publish(r.ctx, channel, payload)
	if _, err := pipe.Exec(r.ctx); err != nil {
		return fmt.Errorf("failed to publish %s %s: %w", hash, field, err)
	}
	return nil
}

// TriggerCommand maps a value pushed onto a trigger list to a command.
func TriggerCommand(key, value string) (types.Command, error) {
	return types.ParseCommand(strings.TrimPrefix(key, "cockpit:") + ":" + strings.TrimSpace(value))
}

func (r *RedisClient) handleTrigger(key string) func(string) error {
	return func(value string) error {
		if r.callbacks.CommandCallback == nil {
			return nil
		}
		cmd, err := TriggerCommand(key, value)
		if err != nil {
			r.logger.Infof("Invalid %s command value: %s", key, value)
			return err
		}
		return r.callbacks.CommandCallback(cmd)
	}
}

func (r *RedisClient) listCommandListener(key string, handler func(string) error) {
	defer r.wg.Done()
	r.logger.Infof("Starting list command listener for %s", key)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Infof("Context cancelled, exiting %s listener", key)
			return
		default:
			// short timeout so cancellation is noticed
			result, err := r.client.BRPop(r.ctx, 5*time.Second, key).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				if errors.Is(err, context.Canceled) {
					r.logger.Infof("Context cancelled, exiting %s listener", key)
					return
				}
				r.logger.Warnf("Error reading from %s list: %v", key, err)
				continue
			}

			if len(result) >= 2 { // BRPOP returns [key, value]
				value := result[1]
				r.logger.Debugf("Received command from %s: %s", key, value)
				if err := handler(value); err != nil {
					r.logger.Warnf("Error handling %s command: %v", key, err)
				}
			}
		}
	}
}

func (r *RedisClient) redisListener(pubsub *redis.PubSub) {
	defer r.wg.Done()
	defer pubsub.Close()

	r.logger.Infof("Starting Redis message listener")
	channel := pubsub.Channel()

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Infof("Context cancelled, exiting listener")
			return
		case msg, ok := <-channel:
			if !ok || msg == nil {
				if r.ctx.Err() != nil {
					return
				}
				r.logger.Fatalf("Redis connection lost, exiting to allow systemd restart")
			}

			switch msg.Channel {
			case TelemetryKey:
				if err := r.handleTelemetryMessage(msg.Payload); err != nil {
					r.logger.Warnf("Failed to refresh telemetry: %v", err)
				}

			case CommandsKey:
				if err := r.RefreshCommands(); err != nil {
					r.logger.Warnf("Failed to refresh commands: %v", err)
				}

			case LifecycleChannel:
				r.logger.Debugf("Received lifecycle event: %s", msg.Payload)
				event, err := types.ParseLifecycleEvent(msg.Payload)
				if err != nil {
					r.logger.Warnf("%v", err)
					continue
				}
				// the new vehicle's telemetry and commands must be in place
				// before the machines re-resolve
				if event == types.VehicleLoaded {
					if err := r.RefreshTelemetry(); err != nil {
						r.logger.Warnf("Failed to refresh telemetry: %v", err)
					}
					if err := r.RefreshCommands(); err != nil {
						r.logger.Warnf("Failed to refresh commands: %v", err)
					}
				}
				if r.callbacks.LifecycleCallback != nil {
					if err := r.callbacks.LifecycleCallback(event); err != nil {
						r.logger.Warnf("Failed to handle lifecycle event %s: %v", event, err)
					}
				}
			}
		}
	}
}

// handleTelemetryMessage applies a "field=value" update, or reloads the
// whole hash for any other payload.
func (r *RedisClient) handleTelemetryMessage(payload string) error {
	if field, value, ok := strings.Cut(payload, "="); ok && field != "" {
		r.Set(field, value)
		return nil
	}
	return r.RefreshTelemetry()
}
