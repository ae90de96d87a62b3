package sync

import (
	"fmt"
	"image"

	"github.com/coolone/sitesync/internal/apperrors"
	"github.com/coolone/sitesync/internal/images"
	"github.com/coolone/sitesync/internal/store"
)

// TargetMarkdown is the target name of the page document.
const TargetMarkdown = "markdown"

// StepKind is the kind of write a step performs.
type StepKind int

const (
	// StepMarkdown writes the page document.
	StepMarkdown StepKind = iota
	// StepUpload writes a pending image.
	StepUpload
	// StepDelete removes a stored image.
	StepDelete
)

func (k StepKind) String() string {
	switch k {
	case StepUpload:
		return "upload"
	case StepDelete:
		return "delete"
	default:
		return TargetMarkdown
	}
}

// Step is one planned write.
type Step struct {
	Kind   StepKind
	Target string
	Path   string

	// Content is the serialized page for StepMarkdown.
	Content []byte
	// Item is the stored page for StepMarkdown, nil for a new page.
	Item *store.Item
	// Image is the pending image for StepUpload.
	Image image.Image
}

// Plan lists the writes needed to save an edit, and the ones that cannot be
// made because their path is unknown.
type Plan struct {
	Steps   []Step
	Skipped []Skip
}

// BuildPlan diffs an edit against its snapshots.
//
// It fails only when the page cannot be serialized, in which case nothing
// must be written.
func BuildPlan(e *Edit) (*Plan, error) {
	content, err := e.Page.Bytes()
	if err != nil {
		return nil, fmt.Errorf("serialize %s/%s: %w", e.Type, e.Name, err)
	}

	plan := &Plan{}

	md := Step{Kind: StepMarkdown, Target: TargetMarkdown, Content: content, Item: e.Item}
	if e.Item != nil {
		md.Path = e.Item.Path
	} else {
		md.Path = e.layout.MarkdownPath(e.Type, e.Name)
	}
	plan.Steps = append(plan.Steps, md)

	for _, slot := range e.slots() {
		plan.addSlot(e, slot)
	}
	plan.addAttachments(e)

	return plan, nil
}

func (p *Plan) addSlot(e *Edit, slot namedSlot) {
	change := images.DiffSlot(slot.snapshot)

	switch change.Action {
	case images.ActionUpload:
		path, err := e.layout.SlotPath(&e.Page.Metadata, e.Name, slot.name)
		if err != nil {
			p.skip(slot.name, VerbOverwrite, err)
			return
		}
		p.Steps = append(p.Steps, Step{Kind: StepUpload, Target: slot.name, Path: path, Image: change.Image})
		// Uploads are always PNG, so a stored image with another extension is left behind
		if old := change.Original; old != nil && !old.IsLocal() && old.Path != "" && old.Path != path {
			p.Steps = append(p.Steps, Step{Kind: StepDelete, Target: slot.name, Path: old.Path})
		}
	case images.ActionDelete:
		// The metadata extension is already cleared, the original knows the path
		path := change.Original.Path
		if path == "" {
			p.skip(slot.name, VerbDelete, fmt.Errorf("%w: slot %s has no stored path", apperrors.ErrUnresolvablePath, slot.name))
			return
		}
		p.Steps = append(p.Steps, Step{Kind: StepDelete, Target: slot.name, Path: path})
	case images.ActionNone:
	}
}

func (p *Plan) addAttachments(e *Edit) {
	changes := images.DiffSnapshot(e.Attachments)
	if changes.Empty() {
		return
	}

	ct, typed := e.Page.Metadata.ContentType()

	for _, key := range changes.UploadKeys() {
		if !typed {
			p.skip(key, VerbOverwrite, fmt.Errorf("%w: metadata has no content type", apperrors.ErrUnresolvablePath))
			continue
		}
		path, err := e.layout.AttachmentPath(ct, e.Name, key)
		if err != nil {
			p.skip(key, VerbOverwrite, err)
			continue
		}
		p.Steps = append(p.Steps, Step{Kind: StepUpload, Target: key, Path: path, Image: changes.Upload[key]})
	}

	for _, key := range changes.DeleteKeys() {
		path := changes.Delete[key].Path
		if path == "" {
			if !typed {
				p.skip(key, VerbDelete, fmt.Errorf("%w: metadata has no content type", apperrors.ErrUnresolvablePath))
				continue
			}
			var err error
			if path, err = e.layout.AttachmentPath(ct, e.Name, key); err != nil {
				p.skip(key, VerbDelete, err)
				continue
			}
		}
		p.Steps = append(p.Steps, Step{Kind: StepDelete, Target: key, Path: path})
	}
}

func (p *Plan) skip(target string, verb Verb, reason error) {
	p.Skipped = append(p.Skipped, Skip{
		Operation: Operation{Target: target, Verb: verb},
		Reason:    reason,
	})
}

// ImageCounts returns the number of planned image uploads and deletes.
func (p *Plan) ImageCounts() (uploads, deletes int) {
	for _, s := range p.Steps {
		switch s.Kind {
		case StepUpload:
			uploads++
		case StepDelete:
			deletes++
		case StepMarkdown:
		}
	}
	return uploads, deletes
}
