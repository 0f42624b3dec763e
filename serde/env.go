package serde

import (
	"os"
	"reflect"

	"github.com/favbox/chainkit/internal/generic"
)

// FillSecretsFromEnv 首次构造时，用环境变量填充仍为空的字符串密钥字段。
// v 必须是结构体指针，否则不做任何事。
func FillSecretsFromEnv(v Serializable) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr {
		return
	}
	elem := generic.Deref(rv)
	if !elem.IsValid() || elem.Kind() != reflect.Struct {
		return
	}
	for _, spec := range fieldsOf(elem.Type()) {
		if spec.secret == "" {
			continue
		}
		fv := elem.FieldByIndex(spec.index)
		if fv.Kind() != reflect.String || fv.String() != "" || !fv.CanSet() {
			continue
		}
		if val, ok := os.LookupEnv(spec.secret); ok {
			fv.SetString(val)
		}
	}
}

// SecretValues 收集实例及其嵌套对象中非空的字符串密钥字段值，键为密钥标识。
// 持久化前用于确认序列化文本中没有泄漏密钥。
func SecretValues(v Serializable) map[string]string {
	out := map[string]string{}
	collectSecrets(v, out)
	return out
}

func collectSecrets(v Serializable, out map[string]string) {
	attrs, err := GetAttributes(v)
	if err != nil {
		return
	}
	elem := generic.Deref(reflect.ValueOf(v))
	if elem.IsValid() && elem.Kind() == reflect.Struct {
		for _, spec := range fieldsOf(elem.Type()) {
			env, ok := attrs.Secrets[spec.name]
			if !ok {
				continue
			}
			if fv := elem.FieldByIndex(spec.index); fv.Kind() == reflect.String && fv.String() != "" {
				out[env] = fv.String()
			}
		}
	}
	for _, c := range attrs.Metadata.Callables {
		for _, s := range flattenCallables(c) {
			collectSecrets(s, out)
		}
	}
}
