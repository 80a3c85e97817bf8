package media

import (
	"context"
	"errors"
	"fmt"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/pulse-chat/pulse-server/internal/apierr"
	"github.com/pulse-chat/pulse-server/internal/conversation"
)

// Media type classification, matching the messages.type CHECK constraint.
const (
	KindImage = "image"
	KindVideo = "video"
)

// Size limits and signed-URL lifetimes from the upload authorization contract.
const (
	MaxImageBytes  = 5 * 1024 * 1024
	MaxVideoBytes  = 20 * 1024 * 1024
	UploadURLTTL   = 300 * time.Second
	DownloadURLTTL = 3600 * time.Second
)

var imageMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

var videoMimeTypes = map[string]bool{
	"video/mp4":       true,
	"video/quicktime": true,
	"video/webm":      true,
}

// unsafePathChar matches any character not in [A-Za-z0-9._-], the sanitization rule for filenames embedded in a
// storage path.
var unsafePathChar = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// ClassifyMimeType reports whether mimeType is an accepted image or video type, matching the enumerations allowed
// for upload requests. An empty kind with a false ok means the type is not accepted for upload.
func ClassifyMimeType(mimeType string) (kind string, ok bool) {
	switch {
	case imageMimeTypes[mimeType]:
		return KindImage, true
	case videoMimeTypes[mimeType]:
		return KindVideo, true
	default:
		return "", false
	}
}

// MaxBytesFor returns the maximum allowed upload size for the given media kind.
func MaxBytesFor(kind string) int64 {
	if kind == KindVideo {
		return MaxVideoBytes
	}
	return MaxImageBytes
}

// SanitizeFileName strips path separators and replaces every character outside [A-Za-z0-9._-] with an underscore.
func SanitizeFileName(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	return unsafePathChar.ReplaceAllString(name, "_")
}

// BuildUploadPath constructs the storage key conversations/{conversationId}/{userId}_{epochMillis}_{fileName}, with
// fileName already sanitized by the caller.
func BuildUploadPath(conversationID, userID uuid.UUID, epochMillis int64, sanitizedFileName string) string {
	return fmt.Sprintf("conversations/%s/%s_%d_%s", conversationID, userID, epochMillis, sanitizedFileName)
}

// UploadOptions carries the metadata the blob store needs to accept an upload at a signed URL.
type UploadOptions struct {
	ContentType   string
	MaxBytes      int64
	ValidDuration time.Duration
}

// SignedUpload is what a blob store returns for an authorized upload.
type SignedUpload struct {
	URL   string
	Token string
}

// BucketOptions configures bucket creation; most backends only need Public.
type BucketOptions struct {
	Public bool
}

// Bucket describes a blob store bucket.
type Bucket struct {
	Name   string
	Public bool
}

// BlobStore abstracts the signed-URL object store the Media Authorization Service delegates to. A production
// deployment backs this with S3, GCS, or Supabase Storage; LocalBlobStore backs it with the local filesystem for
// local development and tests.
type BlobStore interface {
	CreateSignedUploadURL(ctx context.Context, path string, opts UploadOptions) (SignedUpload, error)
	CreateSignedDownloadURL(ctx context.Context, path string, ttl time.Duration) (string, error)
	Remove(ctx context.Context, paths []string) error
	ListBuckets(ctx context.Context) ([]Bucket, error)
	CreateBucket(ctx context.Context, name string, opts BucketOptions) error
}

// Sentinel errors for the media package.
var (
	ErrUnsupportedMimeType = errors.New("mime type is not accepted for upload")
	ErrFileTooLarge        = errors.New("file exceeds the maximum upload size for its media type")
)

// RequestUploadURLParams groups the inputs for an upload authorization request.
type RequestUploadURLParams struct {
	ActorID        uuid.UUID
	ConversationID uuid.UUID
	FileName       string
	MimeType       string
	FileSize       int64
	// EpochMillis is the upload timestamp used in the storage path; callers stamp it rather than the service calling
	// time.Now(), keeping path construction a pure function.
	EpochMillis int64
}

// UploadURLResult is the response shape for a successful upload authorization. Width/Height are populated only when
// the blob store already holds readable bytes at the returned path (never true for a fresh upload request against a
// remote object store, but exercised against LocalBlobStore in tests and left in place for any backend that
// pre-stages bytes before minting the signed URL).
type UploadURLResult struct {
	UploadURL string
	FilePath  string
	Token     string
	MediaType string
	ExpiresIn int
	Width     int
	Height    int
}

// localReader is implemented by blob stores that can serve already-stored bytes back locally, letting the Media
// Authorization Service probe image dimensions without a network round trip. Remote backends (S3, GCS, Supabase)
// have no local analogue and simply don't implement it.
type localReader interface {
	OpenLocal(ctx context.Context, path string) (io.ReadCloser, error)
}

// probeImageDimensions best-effort decodes an image to report its pixel dimensions, used to enrich the upload
// authorization response when the underlying bytes are already reachable. Decode failures are not an error for the
// caller: mediaMeta dimensions are a nice-to-have client hint, never a gate on the signed URL itself.
func probeImageDimensions(ctx context.Context, store BlobStore, kind, path string) (width, height int, ok bool) {
	if kind != KindImage {
		return 0, 0, false
	}
	reader, isLocal := store.(localReader)
	if !isLocal {
		return 0, 0, false
	}
	rc, err := reader.OpenLocal(ctx, path)
	if err != nil {
		return 0, 0, false
	}
	defer func() { _ = rc.Close() }()

	img, err := imaging.Decode(rc)
	if err != nil {
		return 0, 0, false
	}
	bounds := img.Bounds()
	return bounds.Dx(), bounds.Dy(), true
}

// Service authorizes uploads and resolves download URLs for stored media, delegating signing to a BlobStore and
// membership checks to conversation.Service.
type Service struct {
	store         BlobStore
	conversations *conversation.Service
}

// NewService creates a media service backed by store, using conversations for membership checks.
func NewService(store BlobStore, conversations *conversation.Service) *Service {
	return &Service{store: store, conversations: conversations}
}

// RequestUploadURL implements the upload authorization contract: verify membership, classify and size-check the
// file, build a sanitized storage path, then ask the blob store for a signed upload URL.
func (s *Service) RequestUploadURL(ctx context.Context, params RequestUploadURLParams) (*UploadURLResult, error) {
	if err := s.conversations.RequireMember(ctx, params.ConversationID, params.ActorID); err != nil {
		return nil, err
	}

	kind, ok := ClassifyMimeType(params.MimeType)
	if !ok {
		return nil, apierr.BadRequest(ErrUnsupportedMimeType.Error())
	}
	if params.FileSize > MaxBytesFor(kind) {
		return nil, apierr.Validation(ErrFileTooLarge.Error())
	}

	sanitized := SanitizeFileName(params.FileName)
	path := BuildUploadPath(params.ConversationID, params.ActorID, params.EpochMillis, sanitized)

	signed, err := s.store.CreateSignedUploadURL(ctx, path, UploadOptions{
		ContentType: params.MimeType, MaxBytes: params.FileSize, ValidDuration: UploadURLTTL,
	})
	if err != nil {
		return nil, apierr.Dependency("create signed upload url", err)
	}

	result := &UploadURLResult{
		UploadURL: signed.URL, FilePath: path, Token: signed.Token,
		MediaType: kind, ExpiresIn: int(UploadURLTTL.Seconds()),
	}
	result.Width, result.Height, _ = probeImageDimensions(ctx, s.store, kind, path)
	return result, nil
}

// GetMediaURL returns a signed download URL for filePath. Possession of a filePath recovered from a message the
// caller can already see is treated as sufficient authorization; history reads already enforced membership, so no
// membership re-check happens here.
func (s *Service) GetMediaURL(ctx context.Context, filePath string) (string, error) {
	url, err := s.store.CreateSignedDownloadURL(ctx, filePath, DownloadURLTTL)
	if err != nil {
		return "", apierr.Dependency("create signed download url", err)
	}
	return url, nil
}
