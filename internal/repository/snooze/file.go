package snooze

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/alarm-klaxon/internal/config"
	"github.com/oshokin/alarm-klaxon/internal/logger"
)

// snoozesField is the top-level JSON key holding the records.
const snoozesField = "snoozes"

// corruptSuffix is appended to a snooze file that could not be decoded.
const corruptSuffix = ".corrupt"

// errCorruptFile marks a snooze file that exists but cannot be decoded.
var errCorruptFile = errors.New("decode snooze file")

// FileRepository persists snooze records to a JSON file on disk.
// JSON is produced and consumed via protojson so the file matches what the
// gRPC transport sends for the same values.
type FileRepository struct {
	// path is the filesystem location of the JSON file.
	path string
	// mu serializes read-modify-write cycles.
	mu sync.Mutex
}

// NewFileRepository creates a repository that reads/writes JSON at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Load reads every record from disk.
func (r *FileRepository) Load(_ context.Context) (map[int]time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.read()
}

// Save writes the record for id.
func (r *FileRepository) Save(ctx context.Context, id int, until time.Time) error {
	return r.update(ctx, func(records map[int]time.Time) {
		records[id] = until
	})
}

// Clear removes the record for id.
func (r *FileRepository) Clear(ctx context.Context, id int) error {
	return r.update(ctx, func(records map[int]time.Time) {
		delete(records, id)
	})
}

// ClearAll removes every record.
func (r *FileRepository) ClearAll(ctx context.Context) error {
	return r.update(ctx, func(records map[int]time.Time) {
		clear(records)
	})
}

// update applies fn to the stored records and writes them back. A corrupt
// file is set aside next to the original and replaced by a fresh one.
func (r *FileRepository) update(ctx context.Context, fn func(map[int]time.Time)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.read()

	switch {
	case err == nil, errors.Is(err, ErrNotFound):
	case errors.Is(err, errCorruptFile):
		backup := r.path + corruptSuffix
		logger.WarnKV(ctx, "Snooze file is corrupt, starting over",
			"path", r.path,
			"backup", backup,
			"error", err,
		)

		if renameErr := os.Rename(r.path, backup); renameErr != nil {
			return fmt.Errorf("set aside corrupt snooze file: %w", renameErr)
		}

		records = nil
	default:
		return err
	}

	if records == nil {
		records = make(map[int]time.Time)
	}

	fn(records)

	return r.write(records)
}

// read decodes the file. Must be called with mu held.
func (r *FileRepository) read() (map[int]time.Time, error) {
	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read snooze file: %w", err)
	}

	var document structpb.Struct
	if err = protojson.Unmarshal(contents, &document); err != nil {
		return nil, fmt.Errorf("%w: %w", errCorruptFile, err)
	}

	records := make(map[int]time.Time)

	for key, value := range document.GetFields()[snoozesField].GetStructValue().GetFields() {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("%w: alarm id %q: %w", errCorruptFile, key, err)
		}

		until, err := time.Parse(time.RFC3339Nano, value.GetStringValue())
		if err != nil {
			return nil, fmt.Errorf("%w: alarm %d: %w", errCorruptFile, id, err)
		}

		records[id] = until
	}

	return records, nil
}

// write encodes the records to disk. Must be called with mu held.
func (r *FileRepository) write(records map[int]time.Time) error {
	fields := make(map[string]*structpb.Value, len(records))

	for id, until := range records {
		fields[strconv.Itoa(id)] = structpb.NewStringValue(until.UTC().Format(time.RFC3339Nano))
	}

	document := &structpb.Struct{
		Fields: map[string]*structpb.Value{
			snoozesField: structpb.NewStructValue(&structpb.Struct{Fields: fields}),
		},
	}

	marshalOptions := protojson.MarshalOptions{
		EmitUnpopulated: true,
		Multiline:       true,
	}

	data, err := marshalOptions.Marshal(document)
	if err != nil {
		return fmt.Errorf("encode snoozes: %w", err)
	}

	if err = os.WriteFile(r.path, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write snooze file: %w", err)
	}

	return nil
}
