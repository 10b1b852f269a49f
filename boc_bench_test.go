/*
 * Ever-Block - Cell Graphs and Bag of Cells for TVM Blockchains
 *
 * Copyright EverX
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *   http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package everblock

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// benchGraph builds a graph of the given approximate size with random
// payloads and some shared subtrees, the shape dictionaries produce.
func benchGraph(b *testing.B, cells int) *Cell {
	b.Helper()
	r := rand.New(rand.NewSource(42))

	nodes := make([]*Cell, 0, cells)
	for i := 0; i < cells; i++ {
		builder := NewBuilder()
		payload := make([]byte, 8+r.Intn(64))
		r.Read(payload)
		require.NoError(b, builder.AppendBytes(payload))
		refs := r.Intn(3)
		for j := 0; j < refs && len(nodes) > 0; j++ {
			require.NoError(b, builder.AppendRef(nodes[r.Intn(len(nodes))]))
		}
		c, err := builder.Finalize()
		require.NoError(b, err)
		nodes = append(nodes, c)
	}

	root := NewBuilder()
	require.NoError(b, root.AppendByte(0x00))
	for i := 0; i < MaxRefs && i < len(nodes); i++ {
		require.NoError(b, root.AppendRef(nodes[len(nodes)-1-i]))
	}
	c, err := root.Finalize()
	require.NoError(b, err)
	return c
}

func BenchmarkWriteBOC(b *testing.B) {
	root := benchGraph(b, 1000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := WriteBOC([]*Cell{root}, WriteBOCOptions{})
		require.NoError(b, err)
	}
}

func BenchmarkReadBOC(b *testing.B) {
	root := benchGraph(b, 1000)
	data, err := WriteBOC([]*Cell{root}, WriteBOCOptions{})
	require.NoError(b, err)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := ReadBOC(data, ReadBOCOptions{})
		require.NoError(b, err)
	}
}

func BenchmarkFinalize(b *testing.B) {
	payload := make([]byte, 64)
	rand.New(rand.NewSource(7)).Read(payload)
	child := func() *Cell {
		builder := NewBuilder()
		if err := builder.AppendBytes(payload); err != nil {
			b.Fatal(err)
		}
		c, err := builder.Finalize()
		if err != nil {
			b.Fatal(err)
		}
		return c
	}()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		builder := NewBuilder()
		if err := builder.AppendBytes(payload); err != nil {
			b.Fatal(err)
		}
		if err := builder.AppendRef(child); err != nil {
			b.Fatal(err)
		}
		if _, err := builder.Finalize(); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkHashmapSet(b *testing.B) {
	r := rand.New(rand.NewSource(11))
	keys := make([]*BitString, 1024)
	for i := range keys {
		k := NewBitString()
		if err := k.AppendBits(r.Uint64(), 64); err != nil {
			b.Fatal(err)
		}
		keys[i] = k
	}
	value := NewBuilder()
	if err := value.AppendByte(0x01); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m := NewHashmap(64)
		for _, k := range keys {
			if err := m.Set(k, value); err != nil {
				b.Fatal(err)
			}
		}
	}
}
