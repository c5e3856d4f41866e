// Package bone holds the bone remodeling and bone metastasis models: the
// osteoclast/osteoblast power-law system, its tumour-coupled extensions, the
// molecular RANKL/Wnt model and the treatment scenarios solved by optcontrol.
//
// Every non-integer power of a population goes through pow, which clamps the
// base to Floor. Trajectories that would leave the positive orthant are
// therefore evaluated at a tiny positive value instead of producing NaN.
package bone
