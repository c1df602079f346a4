package mastodon

import (
	"context"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gabriel-vasile/mimetype"

	"github.com/jamesprial/go-mastodon-api-wrapper/internal"
	"github.com/jamesprial/go-mastodon-api-wrapper/pkg/types"
)

const octetStream = "application/octet-stream"

// UploadMedia uploads an attachment for use in PostStatus. Large videos are
// processed asynchronously; until then the returned attachment has no URL.
func (c *Client) UploadMedia(ctx context.Context, req *types.MediaRequest) (*types.MediaAttachment, error) {
	if err := c.validator.ValidateMediaRequest(req); err != nil {
		return nil, err
	}

	name := req.FileName
	if name == "" {
		name = "upload"
	}
	params := Params{}
	if req.Description != "" {
		params["description"] = req.Description
	}
	if req.Focus != nil {
		params["focus"] = formatFocus(req.Focus)
	}
	files := map[string]File{
		"file": {FileName: name, ContentType: detectMimeType(req), Data: req.Data},
	}

	var media types.MediaAttachment
	call := &internal.Call{Method: http.MethodPost, Path: "api/v2/media", Params: params, Files: files}
	if _, err := c.call(ctx, "upload media", call, &media); err != nil {
		return nil, err
	}
	return &media, nil
}

// UpdateMedia changes the alt text or focal point of an unattached upload.
func (c *Client) UpdateMedia(ctx context.Context, id, description string, focus *[2]float64) (*types.MediaAttachment, error) {
	if err := c.validator.ValidateID("id", id); err != nil {
		return nil, err
	}
	params := Params{"description": description}
	if focus != nil {
		if err := c.validator.ValidateMediaRequest(&types.MediaRequest{Data: []byte{0}, Focus: focus}); err != nil {
			return nil, err
		}
		params["focus"] = formatFocus(focus)
	}
	var media types.MediaAttachment
	call := &internal.Call{Method: http.MethodPut, Path: "api/v1/media/" + id, Params: params}
	if _, err := c.call(ctx, "update media", call, &media); err != nil {
		return nil, err
	}
	return &media, nil
}

// detectMimeType prefers the explicit type, then the file extension, then
// the file contents.
func detectMimeType(req *types.MediaRequest) string {
	if req.MimeType != "" {
		return req.MimeType
	}
	if ext := filepath.Ext(req.FileName); ext != "" {
		if t := mime.TypeByExtension(ext); t != "" {
			return t
		}
	}
	if t := mimetype.Detect(req.Data).String(); t != "" {
		return t
	}
	return octetStream
}

func formatFocus(f *[2]float64) string {
	return strconv.FormatFloat(f[0], 'f', -1, 64) + "," + strconv.FormatFloat(f[1], 'f', -1, 64)
}
