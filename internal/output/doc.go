// Copyright 2025 SirSeer, LLC
//
// Licensed under the Business Source License 1.1 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://mariadb.com/bsl11
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package output writes fetched GitHub data as NDJSON (Newline Delimited JSON).
//
// Every line is one Record: the kind of resource ("repository", "star",
// "issue", ...), the owner and name it belongs to, and the resource itself
// under "data". Records are flushed one at a time so large collections are
// never accumulated in memory twice.
//
// Example usage:
//
//	w, err := output.NewFileWriter("widgets.ndjson")
//	if err != nil {
//	    return err
//	}
//	defer w.Close()
//
//	if _, err := output.EmitAll(w, output.KindStar, "octo", "widgets", stars); err != nil {
//	    return err
//	}
package output
