// Copyright 2025 PayRail
// SPDX-License-Identifier: BUSL-1.1
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package facilitator

import "errors"

var (
	// ErrNotFound indicates the facilitator is not registered.
	ErrNotFound = errors.New("facilitator not found")

	// ErrDuplicate indicates a facilitator with the same ID is already registered.
	ErrDuplicate = errors.New("facilitator already registered")

	// ErrInvalidConfig indicates the facilitator configuration is incomplete.
	ErrInvalidConfig = errors.New("invalid facilitator configuration")

	// ErrNoCandidates indicates no registered facilitator supports the
	// requested payment tuple.
	ErrNoCandidates = errors.New("no facilitator supports the requested payment")
)
