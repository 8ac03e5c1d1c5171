package job

import (
	"strconv"
	"sync"

	"github.com/MiSTer-devel/downloader/pkg/autoid"
)

// TypeID identifies a kind of job. It routes a job to its worker and
// groups reporting statistics. Ids are assigned once per kind by
// RegisterType and stay stable for the life of the process.
type TypeID int

var types = struct {
	sync.RWMutex
	alloc  *autoid.IDAllocator
	byName map[string]TypeID
	names  map[TypeID]string
}{
	alloc:  autoid.NewIDAllocator(0),
	byName: make(map[string]TypeID),
	names:  make(map[TypeID]string),
}

// RegisterType returns the TypeID of the job kind called name, allocating
// a new one on first use. It is meant to be called from package-level var
// declarations.
func RegisterType(name string) TypeID {
	types.Lock()
	defer types.Unlock()

	if id, ok := types.byName[name]; ok {
		return id
	}
	id := TypeID(types.alloc.AllocID())
	types.byName[name] = id
	types.names[id] = name
	return id
}

// LookupType returns the TypeID registered under name.
func LookupType(name string) (TypeID, bool) {
	types.RLock()
	defer types.RUnlock()

	id, ok := types.byName[name]
	return id, ok
}

// Name returns the name the kind was registered with, or its number.
func (t TypeID) Name() string {
	types.RLock()
	name, ok := types.names[t]
	types.RUnlock()

	if ok {
		return name
	}
	return "job-type-" + strconv.Itoa(int(t))
}

func (t TypeID) String() string {
	return t.Name()
}
