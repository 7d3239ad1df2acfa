package registry

import (
	"bytes"
	"encoding/json"

	"pagepatch/pkg/contract"
	rafs "pagepatch/plugins/reader/afs"
	rfs "pagepatch/plugins/reader/filesystem"
	wafs "pagepatch/plugins/writer/afs"
	wfs "pagepatch/plugins/writer/filesystem"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// NewReader 工厂签名：接收原样 JSON Options。
type NewReader func(raw json.RawMessage) (contract.Reader, error)

// NewWriter 工厂签名：接收原样 JSON Options。
type NewWriter func(raw json.RawMessage) (contract.Writer, error)

// Reader 工厂注册表（显式、零反射）。
var Reader = map[string]NewReader{
	// fs: 本地文件系统
	"fs": func(raw json.RawMessage) (contract.Reader, error) {
		var opts rfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rfs.New(&opts)
	},
	// afs: URL 寻址存储（file://、mem:// 等）
	"afs": func(raw json.RawMessage) (contract.Reader, error) {
		var opts rafs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rafs.New(&opts, nil)
	},
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 文件系统 Writer（覆盖写/原子替换可配置）
	"fs": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts)
	},
	"afs": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wafs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wafs.New(&opts, nil)
	},
}
