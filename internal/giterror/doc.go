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

// Package giterror classifies failures returned by the GitHub GraphQL API.
// Responses captured by the transport arrive as *ResponseError and carry the
// HTTP status and the typed GraphQL error entries; those are authoritative.
// Plain errors (dial failures, decoder errors) are classified by message.
package giterror
