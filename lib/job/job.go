package job

import (
	"strings"
)

// Job is one unit of schedulable work.
//
// Jobs are tracked by identity, not by value: two jobs of the same kind
// with equal fields are still distinct. Implementations must therefore be
// pointer types, which is what embedding *Base or Base in a struct used by
// pointer gives for free.
type Job interface {
	// TypeID returns the kind of the job.
	TypeID() TypeID
	// Tags returns the tags attached to the job, in insertion order.
	Tags() []Tag
	// AddTag attaches a tag. Tags are expected to be attached before the
	// job is pushed to the scheduler.
	AddTag(tag Tag)
	// Retry returns the job to run when this one fails. Returning the job
	// itself retries it unchanged. Returning false means not retryable.
	Retry() (Job, bool)
	// Backup returns the fallback job to run once retries are exhausted.
	Backup() (Job, bool)
}

// Base implements the tag set of a Job and default Retry and Backup
// behaviour. It is meant to be embedded.
type Base struct {
	tags []Tag
}

// Tags implements Job.
func (b *Base) Tags() []Tag {
	if len(b.tags) == 0 {
		return nil
	}
	ret := make([]Tag, len(b.tags))
	copy(ret, b.tags)
	return ret
}

// AddTag implements Job. Adding a tag twice keeps the first position.
func (b *Base) AddTag(tag Tag) {
	if b.HasTag(tag) {
		return
	}
	b.tags = append(b.tags, tag)
}

// HasTag tells whether tag is attached.
func (b *Base) HasTag(tag Tag) bool {
	for _, t := range b.tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Retry implements Job. By default jobs are not retryable.
func (b *Base) Retry() (Job, bool) {
	return nil, false
}

// Backup implements Job. By default jobs have no backup.
func (b *Base) Backup() (Job, bool) {
	return nil, false
}

// WithTags attaches tags to j and returns it.
func WithTags[J Job](j J, tags ...Tag) J {
	for _, tag := range tags {
		j.AddTag(tag)
	}
	return j
}

// Describe renders a job for logs, e.g. "fetch_file[db:1,zip:3]".
func Describe(j Job) string {
	if j == nil {
		return "<nil>"
	}
	var sb strings.Builder
	sb.WriteString(j.TypeID().Name())
	tags := j.Tags()
	if len(tags) == 0 {
		return sb.String()
	}
	sb.WriteByte('[')
	for i, tag := range tags {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(tag.String())
	}
	sb.WriteByte(']')
	return sb.String()
}
