package vfs

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// snapshotDoc is the CBOR-encoded shape persisted for one commit, used
// both for local snapshot files and for the optional MinIO-backed
// export/import path.
type snapshotDoc struct {
	ProjectID string
	Commit    Commit
}

// EncodeSnapshot serializes one commit to CBOR. CBOR is used here (rather
// than JSON) because commit snapshots can carry arbitrarily large file
// content maps and are write-once, read-rarely blobs — a compact binary
// form matters more than human readability.
func (v *VFS) EncodeSnapshot(commitID string) ([]byte, error) {
	v.mu.RLock()
	c, ok := v.byID[commitID]
	v.mu.RUnlock()
	if !ok {
		return nil, ErrCommitNotFound
	}
	return cbor.Marshal(snapshotDoc{ProjectID: v.projectID, Commit: *c})
}

// DecodeSnapshot parses a CBOR-encoded commit snapshot previously
// produced by EncodeSnapshot, without mutating the receiver's state.
func DecodeSnapshot(raw []byte) (projectID string, c *Commit, err error) {
	var doc snapshotDoc
	if err := cbor.Unmarshal(raw, &doc); err != nil {
		return "", nil, fmt.Errorf("vfs: decode snapshot: %w", err)
	}
	return doc.ProjectID, &doc.Commit, nil
}

// ObjectStore is the narrow surface of a minio.Client this package needs,
// so tests can substitute a fake.
type ObjectStore interface {
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucket, object string, opts minio.GetObjectOptions) (*minio.Object, error)
}

// NewMinioStore builds an ObjectStore backed by a real MinIO (or any
// S3-compatible) endpoint, used for the optional durable snapshot export
// path (§4.6/§4.10 both reach for this for their respective export
// needs).
func NewMinioStore(endpoint, accessKey, secretKey string, useSSL bool) (ObjectStore, error) {
	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}
	return cli, nil
}

// ExportSnapshotToStore uploads commitID's CBOR snapshot to
// "<projectID>/<commitID>.cbor" in bucket.
func (v *VFS) ExportSnapshotToStore(ctx context.Context, store ObjectStore, bucket, commitID string) error {
	raw, err := v.EncodeSnapshot(commitID)
	if err != nil {
		return err
	}
	object := fmt.Sprintf("%s/%s.cbor", v.projectID, commitID)
	_, err = store.PutObject(ctx, bucket, object, bytes.NewReader(raw), int64(len(raw)), minio.PutObjectOptions{
		ContentType: "application/cbor",
	})
	return err
}

// ImportSnapshotFromStore downloads and applies a previously exported
// commit snapshot, restoring it as the current working tree and commit
// history tip exactly as Rollback would for a locally-held commit.
func (v *VFS) ImportSnapshotFromStore(ctx context.Context, store ObjectStore, bucket, commitID string) error {
	object := fmt.Sprintf("%s/%s.cbor", v.projectID, commitID)
	obj, err := store.GetObject(ctx, bucket, object, minio.GetObjectOptions{})
	if err != nil {
		return err
	}
	defer obj.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(obj); err != nil {
		return err
	}

	projectID, c, err := DecodeSnapshot(buf.Bytes())
	if err != nil {
		return err
	}
	if projectID != v.projectID {
		return fmt.Errorf("vfs: snapshot belongs to project %q, not %q", projectID, v.projectID)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.byID[c.ID] = c
	v.commits = append(v.commits, c)
	v.files = make(map[string]*FileNode, len(c.Files))
	for path, node := range c.Files {
		n := node
		v.files[path] = &n
	}
	v.currentCommitID = c.ID
	v.branches[v.currentBranch] = c.ID
	return nil
}
