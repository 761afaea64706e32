// Package idgen 生成请求 ID，底层可选 Snowflake 或 Sonyflake.
package idgen

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/sony/sonyflake"
	"github.com/wyfcoding/fangoost/config"
)

var (
	ErrUnsupportedType  = errors.New("unsupported id generator type")
	ErrParseTime        = errors.New("failed to parse start time")
	ErrCreateNode       = errors.New("failed to create id generator")
	ErrInvalidMachineID = errors.New("machine_id out of range")
)

// sonyflake 默认纪元。
var defaultEpoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// Generator 产生单调递增的 63 位 ID.
type Generator interface {
	NextID() (int64, error)
}

type snowflakeGenerator struct {
	node *snowflake.Node
}

func (g *snowflakeGenerator) NextID() (int64, error) {
	return g.node.Generate().Int64(), nil
}

type sonyflakeGenerator struct {
	sf *sonyflake.Sonyflake
}

func (g *sonyflakeGenerator) NextID() (int64, error) {
	id, err := g.sf.NextID()
	if err != nil {
		return 0, err
	}
	return int64(id & (1<<63 - 1)), nil
}

func parseEpoch(value string) (time.Time, error) {
	if value == "" {
		return defaultEpoch, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrParseTime, err)
	}
	return t, nil
}

// NewGenerator 按 cfg.Type 构造生成器，空类型等同 snowflake.
// snowflake 的 machine_id 取值 0..1023，sonyflake 为 0..65535.
func NewGenerator(cfg config.SnowflakeConfig) (Generator, error) {
	epoch, err := parseEpoch(cfg.StartTime)
	if err != nil {
		return nil, err
	}

	switch cfg.Type {
	case "", "snowflake":
		if cfg.StartTime != "" {
			snowflake.Epoch = epoch.UnixMilli()
		}
		node, err := snowflake.NewNode(cfg.MachineID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCreateNode, err)
		}
		slog.Info("request id generator ready", "type", "snowflake", "machine_id", cfg.MachineID)
		return &snowflakeGenerator{node: node}, nil

	case "sonyflake":
		if cfg.MachineID < 0 || cfg.MachineID > 65535 {
			return nil, ErrInvalidMachineID
		}
		mid := uint16(cfg.MachineID)
		sf, err := sonyflake.New(sonyflake.Settings{
			StartTime: epoch,
			MachineID: func() (uint16, error) { return mid, nil },
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCreateNode, err)
		}
		slog.Info("request id generator ready", "type", "sonyflake", "machine_id", cfg.MachineID)
		return &sonyflakeGenerator{sf: sf}, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, cfg.Type)
	}
}

var (
	mu               sync.RWMutex
	defaultGenerator Generator
)

// Init 替换全局生成器.
func Init(cfg config.SnowflakeConfig) error {
	g, err := NewGenerator(cfg)
	if err != nil {
		return err
	}
	mu.Lock()
	defaultGenerator = g
	mu.Unlock()
	return nil
}

func current() Generator {
	mu.RLock()
	g := defaultGenerator
	mu.RUnlock()
	if g != nil {
		return g
	}

	mu.Lock()
	defer mu.Unlock()
	if defaultGenerator == nil {
		node, err := snowflake.NewNode(1)
		if err != nil {
			panic(fmt.Errorf("auto-initialize id generator: %w", err))
		}
		defaultGenerator = &snowflakeGenerator{node: node}
	}
	return defaultGenerator
}

// GenID 使用全局生成器取号，未 Init 时退化为 machine_id=1 的 snowflake.
func GenID() (int64, error) {
	return current().NextID()
}

// GenIDString 返回十进制请求 ID；取号失败时退化为纳秒时间戳的 36 进制.
func GenIDString() string {
	id, err := GenID()
	if err != nil {
		slog.Warn("id generator failed, falling back to timestamp", "error", err)
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return strconv.FormatInt(id, 10)
}
