// Package engine orchestrates the analyzer: loading configuration exports,
// decomposing them into the temporal store, and running blast-radius
// analysis of proposed changes against the stored graph.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/netscope-io/netscope/pkg/config"
	"github.com/netscope-io/netscope/pkg/diff"
	"github.com/netscope-io/netscope/pkg/discovery"
	"github.com/netscope-io/netscope/pkg/engine/swarm"
	"github.com/netscope-io/netscope/pkg/loader"
	"github.com/netscope-io/netscope/pkg/netmodel"
	"github.com/netscope-io/netscope/pkg/policy"
	"github.com/netscope-io/netscope/pkg/report"
	"github.com/netscope-io/netscope/pkg/schema"
	"github.com/netscope-io/netscope/pkg/store"
	"github.com/netscope-io/netscope/pkg/telemetry"
	"github.com/netscope-io/netscope/pkg/tree"
	"github.com/netscope-io/netscope/pkg/version"
)

// ErrNoHostname is returned for documents whose metadata section does not
// name the device.
var ErrNoHostname = errors.New("engine: document has no device/hostname")

// Config holds engine settings.
type Config struct {
	StorePath string // badger directory; empty runs in-memory

	Vendor    string
	OS        string
	OSVersion string

	RulesFile string
	Analysis  config.AnalysisConfig
	Ingest    config.IngestConfig

	// Telemetry config.
	OtelEndpoint  string
	SkipTelemetry bool // set when embedding in an app that already has OTEL

	Logger *slog.Logger
}

// Engine is the runtime core.
type Engine struct {
	Store  store.Store
	Logger *slog.Logger
	Tracer trace.Tracer

	config   Config
	provider schema.Provider
	refCache *schema.Cache
	aliases  *tree.AliasTable
	policy   *policy.Engine
	shutdown func(context.Context) error
}

// Option is a functional configuration override.
type Option func(*Engine)

// New initializes the Engine.
func New(ctx context.Context, opts ...Option) (*Engine, error) {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		ReplaceAttr: redactSensitiveData,
	})
	e := &Engine{
		Logger:   slog.New(handler),
		Tracer:   otel.Tracer("netscope/engine"),
		provider: schema.NewStaticProvider(),
		refCache: schema.NewCache(),
		aliases:  tree.NewAliasTable(),
		config: Config{
			Vendor:   config.DefaultVendor,
			Analysis: config.DefaultAnalysisConfig(),
			Ingest:   config.DefaultIngestConfig(),
		},
	}

	for _, opt := range opts {
		opt(e)
	}

	if !e.config.SkipTelemetry {
		shutdown, err := telemetry.Init(ctx, version.AppName, version.Current, e.config.OtelEndpoint)
		if err != nil {
			e.Logger.Warn("telemetry init failed", "error", err)
		} else {
			e.shutdown = shutdown
		}
	}

	if e.Store == nil {
		s, err := store.OpenBadger(e.config.StorePath, e.Logger)
		if err != nil {
			return nil, err
		}
		e.Store = s
	}

	rules := policy.DefaultRules()
	if e.config.RulesFile != "" {
		loaded, err := policy.LoadRules(e.config.RulesFile)
		if err != nil {
			return nil, err
		}
		rules = append(rules, loaded...)
	}
	pol, err := policy.New(e.Logger)
	if err != nil {
		return nil, err
	}
	if err := pol.Compile(rules); err != nil {
		return nil, err
	}
	e.policy = pol

	return e, nil
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.Logger = l }
}

// WithStore injects a store, bypassing the badger default.
func WithStore(s store.Store) Option {
	return func(e *Engine) { e.Store = s }
}

// WithSchemaProvider overrides the built-in schema set.
func WithSchemaProvider(p schema.Provider) Option {
	return func(e *Engine) { e.provider = p }
}

// WithAliases installs vendor path aliases applied during ingestion and
// comparison.
func WithAliases(a *tree.AliasTable) Option {
	return func(e *Engine) { e.aliases = a }
}

// WithConfig sets raw config.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		if cfg.Vendor == "" {
			cfg.Vendor = config.DefaultVendor
		}
		if cfg.Analysis.MaxHops == 0 {
			cfg.Analysis = config.DefaultAnalysisConfig()
		}
		if cfg.Ingest.Concurrency == 0 {
			cfg.Ingest = config.DefaultIngestConfig()
		}
		e.config = cfg
		if cfg.Logger != nil {
			e.Logger = cfg.Logger
		}
	}
}

// Close releases the store and flushes telemetry.
func (e *Engine) Close(ctx context.Context) error {
	var errs []error
	if e.Store != nil {
		errs = append(errs, e.Store.Close())
	}
	if e.shutdown != nil {
		errs = append(errs, e.shutdown(ctx))
	}
	return errors.Join(errs...)
}

// Ingest decomposes one configuration document into the temporal store and
// rebuilds the device's structural edges. A batch that loses a transaction
// race is retried against the fresh baseline before failing.
func (e *Engine) Ingest(ctx context.Context, doc tree.Document) (store.BatchResult, error) {
	ctx, span := e.Tracer.Start(ctx, "Engine.Ingest")
	defer span.End()

	doc = e.aliases.Canonicalize(doc)
	device := hostnameOf(doc.Root)
	if device == "" {
		return store.BatchResult{}, ErrNoHostname
	}
	span.SetAttributes(attribute.String("device", device))

	model, err := netmodel.Build(device, doc.Root)
	if err != nil {
		return store.BatchResult{}, err
	}

	var res store.BatchResult
	for attempt := 0; ; attempt++ {
		res, err = e.Store.UpsertBatch(ctx, device, model.Upserts)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrVersionConflict) || attempt >= e.config.Ingest.ConflictRetries {
			return store.BatchResult{}, err
		}
		e.Logger.Warn("ingest batch lost a version race, retrying", "device", device, "attempt", attempt+1)
	}

	edges := append(model.Edges, e.sessionEdges(ctx, device, model)...)
	if err := e.Store.ReplaceDeviceEdges(ctx, device, edges); err != nil {
		return store.BatchResult{}, err
	}

	e.Logger.Info("device ingested",
		"device", device,
		"created", res.Created, "changed", res.Changed, "unchanged", res.Unchanged,
		"edges", len(edges))
	return res, nil
}

// IngestFile loads and ingests one export file.
func (e *Engine) IngestFile(ctx context.Context, path string) (store.BatchResult, error) {
	doc, err := loader.LoadFile(path)
	if err != nil {
		return store.BatchResult{}, err
	}
	return e.Ingest(ctx, doc)
}

// IngestAll ingests a fleet of export files concurrently. Failures are
// collected per file; one bad export does not stop the rest.
func (e *Engine) IngestAll(ctx context.Context, paths []string) error {
	ctx, span := e.Tracer.Start(ctx, "Engine.IngestAll")
	defer span.End()
	span.SetAttributes(attribute.Int("files", len(paths)))

	pool := swarm.NewPool(e.config.Ingest.Concurrency)
	pool.Contention = func(err error) bool { return errors.Is(err, store.ErrVersionConflict) }

	for _, path := range paths {
		p := path
		pool.Go(ctx, func(ctx context.Context) error {
			if _, err := e.IngestFile(ctx, p); err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
			return nil
		})
	}
	return pool.Wait()
}

// Analyze diffs a proposed configuration against the device's stored
// current tree and reports every identity the change reaches: direct
// reference holders at hop 0, cascade dependents beyond.
func (e *Engine) Analyze(ctx context.Context, device string, proposed tree.Document) (*report.Report, error) {
	ctx, span := e.Tracer.Start(ctx, "Engine.Analyze")
	defer span.End()
	span.SetAttributes(attribute.String("device", device))

	currentRoot, err := e.Store.CurrentTree(ctx, device)
	if err != nil {
		return nil, fmt.Errorf("engine: load current tree for %s: %w", device, err)
	}
	current := tree.Document{Vendor: config.DefaultVendor, Root: currentRoot}
	proposed = e.aliases.Canonicalize(proposed)

	schemaRoot, err := e.provider.GetSchema(e.config.Vendor, e.config.OS, e.config.OSVersion)
	if err != nil {
		return nil, err
	}
	refs := e.refCache.Get(schemaRoot)

	d := &diff.Engine{Schema: schemaRoot, Aliases: e.aliases}
	changes := d.Compare(current, proposed)
	span.SetAttributes(attribute.Int("changes", len(changes)))

	disc := discovery.New(e.Store, refs, e.Logger)
	direct, err := disc.Direct(ctx, changes)
	if err != nil {
		return nil, err
	}

	roots, err := e.cascadeRoots(device, currentRoot, proposed.Root, direct)
	if err != nil {
		return nil, err
	}
	cascade, err := e.expand(ctx, roots, direct)
	if err != nil {
		return nil, err
	}

	rep := e.grade(device, changes, direct, cascade)
	rep.Caveats = append(rep.Caveats, disc.Caveats()...)
	span.SetAttributes(attribute.Int("findings", len(rep.Findings)))
	return rep, nil
}

// AnalyzeFile loads a proposed export and analyzes it against the stored
// state of the device it names.
func (e *Engine) AnalyzeFile(ctx context.Context, path string) (*report.Report, error) {
	doc, err := loader.LoadFile(path)
	if err != nil {
		return nil, err
	}
	doc = e.aliases.Canonicalize(doc)
	device := hostnameOf(doc.Root)
	if device == "" {
		return nil, ErrNoHostname
	}
	return e.Analyze(ctx, device, doc)
}

// cascadeRoots is the set the cascade expands from: identities whose own
// state the proposal changes, plus every direct reference holder.
func (e *Engine) cascadeRoots(device string, currentRoot, proposedRoot tree.Tree, direct []discovery.Dependent) (map[store.Key]bool, error) {
	curModel, err := netmodel.Build(device, currentRoot)
	if err != nil {
		return nil, err
	}
	proModel, err := netmodel.Build(device, proposedRoot)
	if err != nil {
		return nil, err
	}

	fingerprints := func(m *netmodel.DeviceModel) map[store.Key]uint64 {
		out := make(map[store.Key]uint64, len(m.Upserts))
		for _, u := range m.Upserts {
			out[u.Key] = u.FingerprintContent()
		}
		return out
	}
	cur, pro := fingerprints(curModel), fingerprints(proModel)

	roots := make(map[store.Key]bool)
	for key, fp := range cur {
		if other, ok := pro[key]; !ok || other != fp {
			roots[key] = true
		}
	}
	for key := range pro {
		if _, ok := cur[key]; !ok {
			roots[key] = true
		}
	}
	delete(roots, store.DeviceKey(device))
	for _, dep := range direct {
		roots[dep.Key] = true
	}
	return roots, nil
}

// expand runs the cascade from every root and keeps each reached identity
// at its minimum hop distance. Roots and direct dependents are excluded;
// they are reported in their own right.
func (e *Engine) expand(ctx context.Context, roots map[store.Key]bool, direct []discovery.Dependent) (map[store.Key]int, error) {
	directKeys := make(map[store.Key]bool, len(direct))
	for _, dep := range direct {
		directKeys[dep.Key] = true
	}

	out := make(map[store.Key]int)
	for root := range roots {
		reaches, err := e.Store.CascadeQuery(ctx, root, e.config.Analysis.MaxHops)
		if err != nil {
			return nil, err
		}
		for _, r := range reaches {
			if roots[r.Key] || directKeys[r.Key] {
				continue
			}
			if hops, ok := out[r.Key]; !ok || r.Hops < hops {
				out[r.Key] = r.Hops
			}
		}
	}
	return out, nil
}

func (e *Engine) grade(device string, changes []diff.Change, direct []discovery.Dependent, cascade map[store.Key]int) *report.Report {
	kindByPath := make(map[string]diff.Kind, len(changes))
	for _, c := range changes {
		kindByPath[c.Path] = c.Kind
	}

	rep := &report.Report{
		Device:      device,
		GeneratedAt: time.Now().UTC(),
		Summary:     diff.Summarize(changes),
		Changes:     changes,
	}
	if !e.config.Analysis.IncludeAdded {
		rep.Changes = diff.Mutating(changes)
	}

	for _, dep := range direct {
		severity, rules := e.policy.Grade(policy.Finding{
			Device:       dep.Key.Device,
			IdentityKind: dep.Key.Kind,
			Identity:     dep.Key.Name,
			Hops:         0,
			ChangeKind:   string(kindByPath[dep.ChangePath]),
			ChangePath:   dep.ChangePath,
		})
		rep.Findings = append(rep.Findings, report.Finding{
			Key:        dep.Key,
			Hops:       0,
			Severity:   severity,
			Rules:      rules,
			SourcePath: dep.SourcePath,
			Value:      dep.Value,
			ChangePath: dep.ChangePath,
		})
	}
	for key, hops := range cascade {
		severity, rules := e.policy.Grade(policy.Finding{
			Device:       key.Device,
			IdentityKind: key.Kind,
			Identity:     key.Name,
			Hops:         hops,
		})
		rep.Findings = append(rep.Findings, report.Finding{
			Key:      key,
			Hops:     hops,
			Severity: severity,
			Rules:    rules,
		})
	}

	sort.Slice(rep.Findings, func(i, j int) bool {
		if rep.Findings[i].Hops != rep.Findings[j].Hops {
			return rep.Findings[i].Hops < rep.Findings[j].Hops
		}
		return rep.Findings[i].Key.String() < rep.Findings[j].Key.String()
	})
	return rep
}

// sessionEdges links BGP sessions across devices: the remote interface
// holding a neighbor address is already in the store once its device has
// been ingested.
func (e *Engine) sessionEdges(ctx context.Context, device string, model *netmodel.DeviceModel) []store.StructuralEdge {
	var edges []store.StructuralEdge
	for _, addr := range model.PeerAddresses() {
		keys, err := e.Store.LookupValue(ctx, netmodel.IPFieldPath, addr)
		if err != nil {
			e.Logger.Warn("session lookup failed", "device", device, "neighbor", addr, "error", err)
			continue
		}
		for _, remote := range keys {
			if remote.Device == device {
				continue
			}
			if local, ok := model.Sessions[addr]; ok {
				edges = append(edges, store.StructuralEdge{
					From: local, To: remote, Type: store.EdgeConnectedTo, OwnerDevice: device,
				})
			}
			edges = append(edges, store.StructuralEdge{
				From: store.DeviceKey(device), To: store.DeviceKey(remote.Device),
				Type: store.EdgePeersWith, OwnerDevice: device,
			})
		}
	}
	return edges
}

func hostnameOf(root tree.Tree) string {
	v, ok := tree.At(root, "device/hostname")
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// redactSensitiveData scrubs sensitive keys from logs.
func redactSensitiveData(groups []string, a slog.Attr) slog.Attr {
	sensitiveKeys := map[string]bool{
		"password": true, "secret": true, "token": true, "api_key": true,
		"private_key": true, "auth_token": true, "community": true,
		"snmp_community": true, "tacacs_key": true, "radius_key": true,
		"credential": true, "ssh_key": true,
	}
	if sensitiveKeys[a.Key] {
		return slog.Attr{Key: a.Key, Value: slog.StringValue("[REDACTED]")}
	}
	return a
}
