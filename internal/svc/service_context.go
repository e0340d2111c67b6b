package svc

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"x402-gate-sol/internal/config"
	"x402-gate-sol/internal/logic/core"
	"x402-gate-sol/internal/logic/dispatcher"
	"x402-gate-sol/internal/logic/program"
	"x402-gate-sol/internal/logic/progress"
	"x402-gate-sol/internal/logic/runtime"
	"x402-gate-sol/internal/mq"
	"x402-gate-sol/internal/state"
	"x402-gate-sol/pkg/logger"
)

// ServiceContext 持有进程级共享资源
type ServiceContext struct {
	Config   config.Config
	Store    state.Store
	Sink     core.EventSink
	Program  *program.Program
	Executor *runtime.Executor // 账本写入的唯一串行入口，审计服务也经由它提交
	Producer *kafka.Producer
	Progress *progress.Manager // 内存存储时为空

	redis   *redis.Client
	db      *sql.DB
	closers []func()
}

// NewServiceContext 按配置初始化存储、事件投递与程序
func NewServiceContext(c config.Config) (*ServiceContext, error) {
	sc := &ServiceContext{Config: c}

	// 1. 状态存储
	store, err := sc.openStore(c.Store)
	if err != nil {
		sc.Close()
		return nil, err
	}
	sc.Store = store
	if err := sc.initProgress(c.Store); err != nil {
		sc.Close()
		return nil, err
	}

	// 2. 事件投递
	if c.KafkaProducer.Enabled {
		producer, err := mq.NewKafkaProducer(c.KafkaProducer.ToKafkaOption())
		if err != nil {
			logger.Errorf("Kafka producer 初始化失败: %v", err)
			sc.Close()
			return nil, err
		}
		sc.Producer = producer
		sc.closers = append(sc.closers, func() {
			producer.Flush(5000)
			producer.Close()
		})
		sc.Sink = dispatcher.NewKafkaSink(producer, c.KafkaProducer.Topic, c.KafkaProducer.Partitions, c.KafkaProducer.SendTimeout())
	} else {
		sc.Sink = dispatcher.LogSink{}
	}

	// 3. 程序与执行器
	opts, err := c.Program.ToProgramOptions()
	if err != nil {
		sc.Close()
		return nil, err
	}
	prog, err := program.New(opts)
	if err != nil {
		sc.Close()
		return nil, err
	}
	sc.Program = prog
	sc.Executor = runtime.NewExecutor(store, sc.Sink)
	sc.Executor.Register(prog.ID(), prog)

	logger.Infof("服务上下文初始化完成: store=%s, program=%s", c.Store.Driver, prog.ID())
	return sc, nil
}

func (sc *ServiceContext) openStore(c config.StoreConfig) (state.Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch c.Driver {
	case config.StoreRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
		})
		sc.redis = rdb
		sc.closers = append(sc.closers, func() { _ = rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping %s: %w", c.RedisAddr, err)
		}
		return state.NewRedisStore(rdb), nil

	case config.StorePostgres:
		db, err := sql.Open("postgres", c.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		sc.db = db
		sc.closers = append(sc.closers, func() { _ = db.Close() })
		if err := db.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("postgres ping: %w", err)
		}
		store := state.NewPostgresStore(db)
		if c.Migrate {
			if err := store.Migrate(ctx); err != nil {
				return nil, err
			}
		}
		return store, nil

	case config.StoreMemory, "":
		return state.NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", c.Driver)
	}
}

// initProgress 复用状态存储的连接保存审计进度
func (sc *ServiceContext) initProgress(c config.StoreConfig) error {
	var (
		redisStore *progress.RedisProgressStore
		dbStore    *progress.DBProgressStore
	)
	if sc.redis != nil {
		redisStore = progress.NewRedisProgressStore(sc.redis)
	}
	if sc.db != nil {
		dbStore = progress.NewDBProgressStore(sc.db)
		if c.Migrate {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := dbStore.Migrate(ctx); err != nil {
				return err
			}
		}
	}
	if redisStore == nil && dbStore == nil {
		return nil
	}
	sc.Progress = progress.NewManager(redisStore, dbStore, 5*time.Second)
	return nil
}

// Close 按创建的逆序释放资源
func (sc *ServiceContext) Close() {
	for i := len(sc.closers) - 1; i >= 0; i-- {
		sc.closers[i]()
	}
	sc.closers = nil
}
