package manifest

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed schema.yaml
var schemaYAML []byte

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

// compiledSchema 把内嵌的 YAML schema 转成 JSON 后编译（只做一次）。
func compiledSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		var doc any
		if err := yaml.Unmarshal(schemaYAML, &doc); err != nil {
			schemaErr = fmt.Errorf("解析内嵌 schema 失败：%w", err)
			return
		}
		b, err := json.Marshal(doc)
		if err != nil {
			schemaErr = fmt.Errorf("转换内嵌 schema 失败：%w", err)
			return
		}
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(b))
	})
	return schema, schemaErr
}

// checkShape 校验文档形状；不符合时返回包含具体原因的 ErrNotManifest。
func checkShape(b []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return err
	}
	res, err := s.Validate(gojsonschema.NewBytesLoader(b))
	if err != nil {
		return fmt.Errorf("%w：%v", ErrMalformed, err)
	}
	if res.Valid() {
		return nil
	}
	reasons := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		field := e.Field()
		if field == "" {
			field = "(root)"
		}
		reasons = append(reasons, field+": "+e.Description())
	}
	return fmt.Errorf("%w：%s", ErrNotManifest, strings.Join(reasons, "; "))
}
