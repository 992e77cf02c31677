// Package config loads PimBridge's typed configuration from a JSON
// file, matching spec.md §6's configuration table. Grounded on the
// teacher's preference for explicit, typed config structs (ais/prxs3.go
// and friends decode request bodies into typed structs with jsoniter
// rather than reflection-driven frameworks); no viper/koanf-style
// framework is wired, see DESIGN.md.
package config

import (
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RemapTableType selects the AddressRemapTable variant.
type RemapTableType string

const (
	RemapTableUnlimited RemapTableType = "Unlimited"
	RemapTableLimited   RemapTableType = "Limited"
)

// LoadBalancerKind selects which lb.Balancer implementation to build.
// "Average" is the supplemented baseline balancer recovered from
// original_source/ (see SPEC_FULL.md §4).
type LoadBalancerKind string

const (
	LbStealing    LoadBalancerKind = "Stealing"
	LbAverage     LoadBalancerKind = "Average"
	LbReserve     LoadBalancerKind = "Reserve"
	LbTryReserve  LoadBalancerKind = "TryReserve"
	LbMultiVictim LoadBalancerKind = "MultiVictim"
	LbFastArrive  LoadBalancerKind = "FastArrive"
)

// GatherSchemeKind and ScatterSchemeKind select a comm trigger policy.
type GatherSchemeKind string

const (
	GatherWhenever        GatherSchemeKind = "Whenever"
	GatherInterval        GatherSchemeKind = "Interval"
	GatherOnDemand        GatherSchemeKind = "OnDemand"
	GatherOnDemandOfAll   GatherSchemeKind = "OnDemandOfAll"
	GatherDynamicInterval GatherSchemeKind = "DynamicInterval"
	GatherTaskGenTrack    GatherSchemeKind = "TaskGenerationTrack"
)

type ScatterSchemeKind string

const (
	ScatterAfterGather ScatterSchemeKind = "AfterGather"
	ScatterInterval    ScatterSchemeKind = "Interval"
	ScatterOnDemand    ScatterSchemeKind = "OnDemand"
)

// LoadBalancerConfig mirrors spec.md §6's loadBalancer.* keys.
type LoadBalancerConfig struct {
	Kind          LoadBalancerKind `json:"kind"`
	IdleThreshold int              `json:"idleThreshold"`
	ChunkSize     int              `json:"chunkSize"` // 0 means "half of victim's queue"
	VictimNumber  int              `json:"victimNumber"`
	HotDataNumber int              `json:"hotDataNumber"`
}

// GatherSchemeConfig and ScatterSchemeConfig mirror spec.md §6's
// gatherScheme/scatterScheme keys.
type GatherSchemeConfig struct {
	Kind          GatherSchemeKind `json:"kind"`
	PacketSize    int              `json:"packetSize"`
	Interval      int              `json:"interval"`
	MinInterval   int              `json:"minInterval"`
	MaxInterval   int              `json:"maxInterval"`
	HighWaterMark int              `json:"highWaterMark"`
	Threshold     float64          `json:"threshold"`
}

type ScatterSchemeConfig struct {
	Kind       ScatterSchemeKind `json:"kind"`
	PacketSize int               `json:"packetSize"`
	Interval   int               `json:"interval"`
}

// Config is the fully typed configuration struct, covering every key in
// spec.md §6's table plus loadBalancer.kind's "Average" addition.
type Config struct {
	RemapTableType  RemapTableType `json:"remapTableType"`
	RemapTableSet   int            `json:"remapTableSet"`
	RemapTableAssoc int            `json:"remapTableAssoc"`

	EnableLoadBalance bool `json:"enableLoadBalance"`
	LoadBalancer      LoadBalancerConfig `json:"loadBalancer"`

	CleanStealInterval int `json:"cleanStealInterval"`

	SketchBucketNum  int `json:"sketchBucketNum"`
	SketchBucketSize int `json:"sketchBucketSize"`

	GatherScheme  GatherSchemeConfig  `json:"gatherScheme"`
	ScatterScheme ScatterSchemeConfig `json:"scatterScheme"`

	InterflowOn bool `json:"interflowOn"`
}

// Default returns the configuration used when no file is supplied,
// matching the reference's compiled-in defaults.
func Default() *Config {
	return &Config{
		RemapTableType:    RemapTableUnlimited,
		EnableLoadBalance: true,
		LoadBalancer: LoadBalancerConfig{
			Kind:          LbStealing,
			IdleThreshold: 4,
			ChunkSize:     0,
			VictimNumber:  2,
			HotDataNumber: 8,
		},
		CleanStealInterval: 16,
		SketchBucketNum:    64,
		SketchBucketSize:   4,
		GatherScheme: GatherSchemeConfig{
			Kind:       GatherWhenever,
			PacketSize: 4096,
		},
		ScatterScheme: ScatterSchemeConfig{
			Kind:       ScatterAfterGather,
			PacketSize: 4096,
		},
		InterflowOn: false,
	}
}

// Load reads path and decodes it over Default(), so a partial JSON file
// only overrides the keys it names.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "config: reading %s", path)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "config: decoding %s", path)
	}
	return cfg, nil
}
