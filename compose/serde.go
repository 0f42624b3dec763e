package compose

import (
	"github.com/favbox/chainkit/serde"
)

func init() {
	RegisterSerde(serde.Default())
}

// RegisterSerde 把全部组合子注册到 r。默认注册表在 init 中已注册。
func RegisterSerde(r *serde.Registry) {
	r.MustRegister((*Binding)(nil).SerdeID(), serde.StructFactory[Binding]())
	r.MustRegister((*Each)(nil).SerdeID(), serde.StructFactory[Each]())
	r.MustRegister((*Sequence)(nil).SerdeID(), serde.StructFactory[Sequence]())
	r.MustRegister((*Fallbacks)(nil).SerdeID(), serde.StructFactory[Fallbacks]())
	r.MustRegister((*Parallel)(nil).SerdeID(), serde.StructFactory[Parallel]())
	r.MustRegister((*Passthrough)(nil).SerdeID(), serde.StructFactory[Passthrough]())
	r.MustRegister((*Lambda)(nil).SerdeID(), lambdaFactory)
}

var (
	_ Callable = (*Binding)(nil)
	_ Callable = (*Each)(nil)
	_ Callable = (*Sequence)(nil)
	_ Callable = (*Fallbacks)(nil)
	_ Callable = (*Parallel)(nil)
	_ Callable = (*Passthrough)(nil)
	_ Callable = (*Lambda)(nil)
)
