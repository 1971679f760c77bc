package factor

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/quadricslam/quadric"
	"go.viam.com/quadricslam/spatialmath"
)

// Key identifies a variable in the host solver's estimation state.
type Key uint64

// ErrKeyNotFound is returned when a Values has no variable of the requested kind at a key.
var ErrKeyNotFound = errors.New("key not found")

// NewKeyNotFoundError wraps ErrKeyNotFound for a key.
func NewKeyNotFoundError(kind string, key Key) error {
	return errors.Wrap(ErrKeyNotFound, fmt.Sprintf("no %s at key %d", kind, key))
}

// Values is the view of the host solver's current estimates that a factor evaluates against.
type Values interface {
	Pose(key Key) (spatialmath.Pose, error)
	Quadric(key Key) (quadric.Quadric, error)
}

// MapValues is a Values backed by maps. It is safe for concurrent use.
type MapValues struct {
	mu       sync.RWMutex
	poses    map[Key]spatialmath.Pose
	quadrics map[Key]quadric.Quadric
}

// NewMapValues returns an empty MapValues.
func NewMapValues() *MapValues {
	return &MapValues{
		poses:    map[Key]spatialmath.Pose{},
		quadrics: map[Key]quadric.Quadric{},
	}
}

// InsertPose sets the pose at key.
func (v *MapValues) InsertPose(key Key, pose spatialmath.Pose) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.poses[key] = pose
}

// InsertQuadric sets the quadric at key.
func (v *MapValues) InsertQuadric(key Key, q quadric.Quadric) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.quadrics[key] = q
}

// Pose returns the pose at key.
func (v *MapValues) Pose(key Key) (spatialmath.Pose, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	pose, ok := v.poses[key]
	if !ok {
		return spatialmath.Pose{}, NewKeyNotFoundError("pose", key)
	}
	return pose, nil
}

// Quadric returns the quadric at key.
func (v *MapValues) Quadric(key Key) (quadric.Quadric, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	q, ok := v.quadrics[key]
	if !ok {
		return quadric.Quadric{}, NewKeyNotFoundError("quadric", key)
	}
	return q, nil
}

// QuadricKeys returns the keys of every stored quadric.
func (v *MapValues) QuadricKeys() []Key {
	v.mu.RLock()
	defer v.mu.RUnlock()
	keys := make([]Key, 0, len(v.quadrics))
	for k := range v.quadrics {
		keys = append(keys, k)
	}
	return keys
}
